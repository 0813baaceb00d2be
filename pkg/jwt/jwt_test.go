package jwt

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccessSecret = "test-access-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testAccessSecret, service.accessSecret)
	assert.Equal(t, time.Hour, service.accessTokenExpiry)
}

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	staffID := uuid.New()
	roles := []string{RoleStaff}

	token, err := service.GenerateAccessToken(staffID, "Gate 3", roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, staffID, claims.StaffID)
	assert.Equal(t, "Gate 3", claims.Name)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, staffID.String(), claims.Subject)
}

func TestValidateAccessToken_Invalid(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	token, err := service.GenerateAccessToken(uuid.New(), "Gate 3", []string{RoleStaff})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		svc   *Service
	}{
		{"Garbage", "not.a.token", service},
		{"Empty", "", service},
		{"Tampered", token + "x", service},
		{"Wrong Secret", token, NewService("another-secret-key-entirely", time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := tt.svc.ValidateAccessToken(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestValidateAccessToken_WrongTypeOrIssuer(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	now := time.Now()

	sign := func(c Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)
		return s
	}
	base := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    Issuer,
	}

	_, err := service.ValidateAccessToken(sign(Claims{StaffID: uuid.New(), TokenType: "refresh", RegisteredClaims: base}))
	assert.ErrorContains(t, err, "invalid token type")

	foreign := base
	foreign.Issuer = "someone-else"
	_, err = service.ValidateAccessToken(sign(Claims{StaffID: uuid.New(), TokenType: AccessToken, RegisteredClaims: foreign}))
	assert.Error(t, err)

	_, err = service.ValidateAccessToken(sign(Claims{TokenType: AccessToken, RegisteredClaims: base}))
	assert.ErrorContains(t, err, "no staff id")
}

func TestExpiredToken(t *testing.T) {
	service := NewService(testAccessSecret, -time.Hour)

	token, err := service.GenerateAccessToken(uuid.New(), "Gate 3", []string{RoleStaff})
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.Error(t, err)
	assert.True(t, service.IsTokenExpired(token))
}

func TestIsTokenExpired(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	token, err := service.GenerateAccessToken(uuid.New(), "Gate 3", nil)
	require.NoError(t, err)

	assert.False(t, service.IsTokenExpired(token))
	assert.True(t, service.IsTokenExpired("garbage"))
}

func TestTokenSigningMethod(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	// alg=none must be rejected
	claims := Claims{StaffID: uuid.New(), TokenType: AccessToken, RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer}}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(tokenString)
	assert.Error(t, err)
}

func TestClaimsHasRole(t *testing.T) {
	c := &Claims{Roles: []string{RoleStaff, RoleAdmin}}
	assert.True(t, c.HasRole(RoleAdmin))
	assert.False(t, (&Claims{}).HasRole(RoleStaff))
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := service.GenerateAccessToken(uuid.New(), "Gate", []string{RoleStaff})
			if err != nil {
				errs <- err
				return
			}
			if _, err := service.ValidateAccessToken(token); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
