package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("syntax error at or near SELECT"), false},
		{"eris wrapped", eris.Wrap(&pgconn.PgError{Code: "57P03"}, "db: connect"), true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"cannot connect now", fmt.Errorf("ping: %w", &pgconn.PgError{Code: "57P03"}), true},
		{"connection exception class", &pgconn.PgError{Code: "08006"}, true},
		{"auth failure", &pgconn.PgError{Code: "28P01"}, false},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, false},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"conn reset", syscall.ECONNRESET, true},
		{"dial message", errors.New("failed to connect to `host=db`: dial error (dial tcp 10.0.0.1:5432: connect: connection refused)"), true},
		{"starting up", errors.New("FATAL: the database system is starting up"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
