package postgresql

import (
	"context"
	"testing"
)

func TestNewPostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgres(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
