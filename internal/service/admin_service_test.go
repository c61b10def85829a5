package service

import (
	"context"
	"testing"
	"time"

	"meat-shop/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-key"

func seedAdmin(t *testing.T, repo *mockAdminRepository, username, password string, active bool) *domain.Admin {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	admin := &domain.Admin{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@butcher.test",
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		IsActive:     active,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), admin))
	return admin
}

// Issued tokens carry the admin's id and role
func TestProperty_LoginTokenRoundTrips(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("a token from Login validates to the same admin", prop.ForAll(
		func(username, password string) bool {
			repo := newMockAdminRepository()
			admin := seedAdmin(t, repo, username, password, true)
			svc := NewAdminService(repo, testSecret, time.Minute, zap.NewNop())

			token, loggedIn, err := svc.Login(context.Background(), username, password)
			if err != nil {
				t.Logf("FAIL: login: %v", err)
				return false
			}

			claims, err := svc.ValidateToken(token)
			if err != nil {
				t.Logf("FAIL: validate: %v", err)
				return false
			}

			return claims.UserID == admin.ID &&
				claims.Role == domain.RoleAdmin &&
				claims.Subject == username &&
				loggedIn.LastLogin != nil
		},
		gen.RegexMatch(`[a-z]{4,12}`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := newMockAdminRepository()
	seedAdmin(t, repo, "butcher", "cleaver123", true)
	svc := NewAdminService(repo, testSecret, time.Minute, zap.NewNop())

	_, _, err := svc.Login(context.Background(), "butcher", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "nobody", "cleaver123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	repo := newMockAdminRepository()
	seedAdmin(t, repo, "retired", "cleaver123", false)
	svc := NewAdminService(repo, testSecret, time.Minute, zap.NewNop())

	_, _, err := svc.Login(context.Background(), "retired", "cleaver123")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestValidateTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	repo := newMockAdminRepository()
	svc := NewAdminService(repo, testSecret, time.Minute, zap.NewNop())

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: uuid.New(),
		Role:   domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := foreign.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: uuid.New(),
		Role:   domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err = expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGetAdminByID(t *testing.T) {
	repo := newMockAdminRepository()
	admin := seedAdmin(t, repo, "butcher", "cleaver123", true)
	svc := NewAdminService(repo, testSecret, 0, zap.NewNop())

	found, err := svc.GetAdminByID(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "butcher", found.Username)

	_, err = svc.GetAdminByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the first admin with a hashed password", func(t *testing.T) {
		repo := newMockAdminRepository()
		svc := NewAdminService(repo, testSecret, time.Minute, zap.NewNop())

		require.NoError(t, svc.EnsureBootstrapAdmin(ctx, "owner", "s3cret-pass", ""))

		admin, err := repo.FindByUsername(ctx, "owner")
		require.NoError(t, err)
		assert.NotEqual(t, "s3cret-pass", admin.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("s3cret-pass")))
		assert.Equal(t, "owner@localhost", admin.Email)
		assert.True(t, admin.IsActive)

		_, _, err = svc.Login(ctx, "owner", "s3cret-pass")
		assert.NoError(t, err)
	})

	t.Run("does nothing once an admin exists", func(t *testing.T) {
		repo := newMockAdminRepository()
		seedAdmin(t, repo, "existing", "cleaver123", true)
		svc := NewAdminService(repo, testSecret, time.Minute, zap.NewNop())

		require.NoError(t, svc.EnsureBootstrapAdmin(ctx, "owner", "s3cret-pass", "owner@shop.test"))

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("does nothing without credentials", func(t *testing.T) {
		repo := newMockAdminRepository()
		svc := NewAdminService(repo, testSecret, time.Minute, zap.NewNop())

		require.NoError(t, svc.EnsureBootstrapAdmin(ctx, "", "", ""))

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
