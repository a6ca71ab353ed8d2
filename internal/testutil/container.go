package testutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

const (
	postgresImage = "postgres:16-alpine"
	mailpitImage  = "ghcr.io/axllent/mailpit:latest"
)

// PostgresContainer wraps a postgres testcontainer.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

// MailpitContainer is a fake SMTP relay with a REST API for inspecting mail.
type MailpitContainer struct {
	testcontainers.Container
	SMTPHost string
	SMTPPort int
	APIHost  string
	APIPort  int
}

// Environment holds the containers the integration suite runs against.
type Environment struct {
	Postgres *PostgresContainer
	Mailpit  *MailpitContainer
}

// StartEnvironment starts postgres and mailpit concurrently. On failure any
// container that did start is terminated.
func StartEnvironment(ctx context.Context) (*Environment, error) {
	env := &Environment{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pg, err := NewPostgresContainer(gctx)
		env.Postgres = pg
		return err
	})
	g.Go(func() error {
		mp, err := NewMailpitContainer(gctx)
		env.Mailpit = mp
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, errors.Join(err, env.Terminate(context.Background()))
	}
	return env, nil
}

// Terminate stops every started container.
func (e *Environment) Terminate(ctx context.Context) error {
	var errs []error
	if e.Postgres != nil {
		if err := e.Postgres.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("terminate postgres: %w", err))
		}
	}
	if e.Mailpit != nil {
		if err := e.Mailpit.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("terminate mailpit: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewPostgresContainer starts an empty database. Schema is applied by the
// application's own migrations.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("radar"),
		postgres.WithUsername("radar"),
		postgres.WithPassword("radar"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  connStr,
	}, nil
}

// NewMailpitContainer starts Mailpit with SMTP on 1025 and the API on 8025.
func NewMailpitContainer(ctx context.Context) (*MailpitContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mailpitImage,
			ExposedPorts: []string{"1025/tcp", "8025/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("1025/tcp"),
				wait.ForHTTP("/api/v1/info").WithPort("8025/tcp"),
			).WithDeadline(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start mailpit container: %w", err)
	}

	mp := &MailpitContainer{Container: container}
	if err := mp.resolvePorts(ctx); err != nil {
		_ = container.Terminate(context.Background())
		return nil, err
	}
	return mp, nil
}

func (m *MailpitContainer) resolvePorts(ctx context.Context) error {
	host, err := m.Host(ctx)
	if err != nil {
		return fmt.Errorf("get mailpit host: %w", err)
	}

	smtpPort, err := m.MappedPort(ctx, "1025/tcp")
	if err != nil {
		return fmt.Errorf("get smtp port: %w", err)
	}

	apiPort, err := m.MappedPort(ctx, "8025/tcp")
	if err != nil {
		return fmt.Errorf("get api port: %w", err)
	}

	m.SMTPHost, m.SMTPPort = host, smtpPort.Int()
	m.APIHost, m.APIPort = host, apiPort.Int()
	return nil
}
