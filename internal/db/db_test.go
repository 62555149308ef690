package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestOptions_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{
			name: "zero values",
			want: Options{
				MaxOpenConns:    DefaultMaxOpenConns,
				MaxIdleConns:    DefaultMaxIdleConns,
				ConnMaxLifetime: DefaultConnMaxLifetime,
				ConnMaxIdleTime: DefaultConnMaxIdleTime,
				PingTimeout:     DefaultPingTimeout,
			},
		},
		{
			name: "idle capped by open",
			in:   Options{MaxOpenConns: 4, MaxIdleConns: 8, PingTimeout: time.Second},
			want: Options{
				MaxOpenConns:    4,
				MaxIdleConns:    4,
				ConnMaxLifetime: DefaultConnMaxLifetime,
				ConnMaxIdleTime: DefaultConnMaxIdleTime,
				PingTimeout:     time.Second,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.withDefaults(); got != tt.want {
				t.Errorf("withDefaults() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOpen_RequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), Options{}); !errors.Is(err, ErrNoURL) {
		t.Errorf("Open() error = %v, want ErrNoURL", err)
	}
}

func TestSetup(t *testing.T) {
	pool, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer pool.Close()

	mock.ExpectPing()
	if err := setup(context.Background(), pool, Options{MaxOpenConns: 3}); err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	if got := pool.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("MaxOpenConnections = %d, want 3", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSetup_PingFailure(t *testing.T) {
	pool, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer pool.Close()

	refused := errors.New("connection refused")
	mock.ExpectPing().WillReturnError(refused)
	err = setup(context.Background(), pool, Options{})
	if !errors.Is(err, refused) {
		t.Errorf("setup() error = %v, want wrapped %v", err, refused)
	}
}
