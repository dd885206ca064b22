package service

import (
	"context"
	"time"

	"roast_monitor/internal/export"
	"roast_monitor/internal/models"
	"roast_monitor/internal/repository"
	"roast_monitor/internal/ror"
	"roast_monitor/internal/transport"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Roast drives the single roast session: device, lifecycle, milestones and
// file exchange.
type Roast interface {
	Connect(ctx context.Context, p transport.Params) (string, error)
	Disconnect(ctx context.Context) error
	StartRoast(ctx context.Context) error
	StopRoast(ctx context.Context) (models.RoastEvent, error)
	UndoDrop(ctx context.Context) error
	Reset(ctx context.Context) error
	ToggleEvent(ctx context.Context, label string) (bool, error)
	Import(ctx context.Context, filename string, data []byte) (ImportSummary, error)
	Export(ctx context.Context, format string) (export.File, error)
	State() models.Snapshot
	Analysis() ror.Analysis
	Close() error
}

// EventLog exposes the append-only activity log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ActivityEvent, error)
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Type  string    // "", "START", "DROP", "MILESTONE", "IMPORT", ...
	Limit int       // most recent N entries; 0 means all
}

type Service struct {
	Roast
	EventLog
	Authorization
}

// Options carries the runtime settings services need beyond the repositories.
type Options struct {
	Monitor MonitorOptions
	Auth    AuthOptions
}

func NewService(repos *repository.Repository, opts Options) *Service {
	return &Service{
		Roast:         NewMonitor(repos.ActivityRepo, opts.Monitor),
		EventLog:      NewEventLogService(repos.ActivityRepo),
		Authorization: NewAuthService(repos.Auth, opts.Auth),
	}
}
