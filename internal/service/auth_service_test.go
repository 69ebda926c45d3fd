package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Abdin71/supportflow-ai/internal/config"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/repository"
)

var testAuthConfig = config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 15, BcryptCost: 4}

// staleLookups behaves as if every email lookup ran before any account
// was written, which is what two racing registrations observe.
type staleLookups struct {
	repository.UserRepository
}

func (staleLookups) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, repository.ErrNotFound
}

func TestAuthService_RegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture()
	svc := NewAuthService(testAuthConfig, AuthDependencies{UserRepo: staleLookups{f.users}})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ann", "ann@example.com", "correct-horse"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(ctx, "Ann Again", "ANN@example.com ", "correct-horse")
	if got := errorCode(err); got != "CONFLICT" {
		t.Fatalf("second register code = %q (%v), want CONFLICT", got, err)
	}
}

func TestAuthService_ConcurrentRegistrations(t *testing.T) {
	f := newFixture()
	svc := NewAuthService(testAuthConfig, AuthDependencies{UserRepo: f.users})
	ctx := context.Background()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(ctx, "Bob", "bob@example.com", "correct-horse")
			mu.Lock()
			defer mu.Unlock()
			switch errorCode(err) {
			case "":
				created++
			case "CONFLICT":
				conflicts++
			default:
				t.Errorf("register: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 || conflicts != attempts-1 {
		t.Fatalf("created=%d conflicts=%d, want 1 and %d", created, conflicts, attempts-1)
	}
}

func TestAuthService_LoginCountsSessions(t *testing.T) {
	f := newFixture()
	svc := NewAuthService(testAuthConfig, AuthDependencies{UserRepo: f.users})
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Cy", "cy@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Login(ctx, "cy@example.com", "correct-horse"); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
	user, err := f.users.GetByID(ctx, registered.User.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.LoginCount != 2 || user.LastLoginAt == nil {
		t.Fatalf("login count = %d, last login = %v", user.LoginCount, user.LastLoginAt)
	}
}
