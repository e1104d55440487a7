package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestTokens_Generate_Then_Validate(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("a-secret-long-enough", time.Minute)
	identity := domain.Identity{UserID: "alice", Role: domain.RoleCustomer}

	// Given a token issued for alice
	token, err := tokens.GenerateToken(identity)
	req.NoError(err)

	// When validating it
	got, err := tokens.ValidateToken(token)

	// Then the identity is restored
	req.NoError(err)
	req.Equal(identity, got)
}

func TestTokens_Rejects_Wrong_Secret(t *testing.T) {
	req := require.New(t)
	token, err := NewTokens("first-secret", time.Minute).GenerateToken(domain.Identity{UserID: "alice", Role: domain.RoleCustomer})
	req.NoError(err)

	_, err = NewTokens("second-secret", time.Minute).ValidateToken(token)

	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestTokens_Rejects_Expired(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("a-secret", -time.Minute)
	token, err := tokens.GenerateToken(domain.Identity{UserID: "alice", Role: domain.RoleCustomer})
	req.NoError(err)

	_, err = tokens.ValidateToken(token)

	req.ErrorIs(err, errors.ErrInvalidToken)
	req.Equal(errors.CodeAuthorizationDenied, errors.CodeOf(err))
}

func TestTokens_Rejects_Unknown_Role(t *testing.T) {
	req := require.New(t)
	secret := "a-secret"
	claims := &CustomClaims{
		UserID: "mallory",
		Role:   "root",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			Issuer:    issuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	req.NoError(err)

	_, err = NewTokens(secret, time.Minute).ValidateToken(token)

	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"Authorization header", "Bearer abc", "", "abc"},
		{"Query parameter for websocket", "", "xyz", "xyz"},
		{"Header wins over query", "Bearer abc", "xyz", "abc"},
		{"Other scheme", "Basic abc", "", ""},
		{"Nothing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.query != "" {
				r = httptest.NewRequest("GET", fmt.Sprintf("/ws?token=%s", tt.query), nil)
			}
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			require.Equal(t, tt.want, BearerToken(r))
		})
	}
}

func TestRoomAuthorizer_CanAccessRoom(t *testing.T) {
	ctx := context.Background()
	room := domain.Room{ID: "r1", Active: true, Participants: []domain.UserID{"alice", "acme"}}

	tests := []struct {
		name    string
		userID  domain.UserID
		roomErr error
		want    bool
		wantErr bool
	}{
		{"Participant", "alice", nil, true, false},
		{"Stranger", "bob", nil, false, false},
		{"Admin outside the room", "support", nil, true, false},
		{"Unknown room", "alice", fmt.Errorf("%w: r1", errors.ErrRoomNotFound), false, false},
		{"Directory failure", "alice", fmt.Errorf("disk on fire"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			directory := mocks.NewMockRoomDirectory(ctrl)
			directory.EXPECT().GetRoom(gomock.Any(), domain.RoomID("r1")).Return(room, tt.roomErr)

			authorizer := NewRoomAuthorizer(directory, []domain.UserID{"support"})
			ok, err := authorizer.CanAccessRoom(ctx, tt.userID, "r1")

			if tt.wantErr {
				req.Error(err)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, ok)
		})
	}
}

func TestIdentityContext(t *testing.T) {
	req := require.New(t)
	identity := domain.Identity{UserID: "alice", Role: domain.RoleCustomer}

	_, ok := IdentityFrom(context.Background())
	req.False(ok)

	got, ok := IdentityFrom(WithIdentity(context.Background(), identity))
	req.True(ok)
	req.Equal(identity, got)
}
