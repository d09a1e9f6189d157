package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/otiai10/jobtrack/internal/billing"
	"github.com/otiai10/jobtrack/internal/cache"
	"github.com/otiai10/jobtrack/internal/config"
	"github.com/otiai10/jobtrack/internal/subscription"
	"github.com/otiai10/jobtrack/internal/tier"
	"github.com/otiai10/jobtrack/internal/user"
)

const testWebhookSecret = "whsec_test123"

// fakeEventHandler records handled events
type fakeEventHandler struct {
	events []stripe.Event
	err    error
}

func (f *fakeEventHandler) HandleEvent(ctx context.Context, event stripe.Event) (billing.Outcome, error) {
	f.events = append(f.events, event)
	if f.err != nil {
		return billing.Outcome{}, f.err
	}
	return billing.Outcome{Handled: true}, nil
}

func signedWebhookRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set(billing.SignatureHeader, signed.Header)
	return req
}

func subscriptionPayload(eventType, uid, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": %q,
		"api_version": %q,
		"data": {"object": {
			"id": "sub_new",
			"object": "subscription",
			"status": %q,
			"customer": "cus_1",
			"metadata": {"uid": %q, "plan": "premium"}
		}}
	}`, eventType, stripe.APIVersion, status, uid))
}

func TestStripeWebhook(t *testing.T) {
	tests := []struct {
		name       string
		request    func(t *testing.T) *http.Request
		handlerErr error
		wantStatus int
		wantEvents int
	}{
		{
			name: "valid signature",
			request: func(t *testing.T) *http.Request {
				return signedWebhookRequest(t, subscriptionPayload(billing.EventSubscriptionUpdated, "u1", "active"), testWebhookSecret)
			},
			wantStatus: http.StatusOK,
			wantEvents: 1,
		},
		{
			name: "missing signature",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{}`))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "signed with another secret",
			request: func(t *testing.T) *http.Request {
				return signedWebhookRequest(t, subscriptionPayload(billing.EventSubscriptionUpdated, "u1", "active"), "whsec_other")
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "oversized body",
			request: func(t *testing.T) *http.Request {
				return signedWebhookRequest(t, bytes.Repeat([]byte("a"), maxWebhookBodyBytes+1), testWebhookSecret)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "reconcile failure",
			request: func(t *testing.T) *http.Request {
				return signedWebhookRequest(t, subscriptionPayload(billing.EventSubscriptionUpdated, "u1", "active"), testWebhookSecret)
			},
			handlerErr: errors.New("firestore unavailable"),
			wantStatus: http.StatusInternalServerError,
			wantEvents: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeEventHandler{err: tt.handlerErr}
			h := NewWebhookHandler(events, testWebhookSecret, zap.NewNop())

			rec := httptest.NewRecorder()
			h.StripeWebhook(rec, tt.request(t))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Len(t, events.events, tt.wantEvents)
		})
	}
}

func TestStripeWebhook_ReconcilesTier(t *testing.T) {
	fixtures := &config.FixturesConfig{
		Users: []config.UserFixture{{UID: "alice", Email: "alice@example.com"}},
	}
	repo := user.NewStaticRepository(fixtures)
	subs := subscription.NewStaticRepository(nil)
	users := user.NewCachedRepository(repo, cache.New[user.Record](time.Minute, 10))
	resolver := tier.NewResolver(users, subs)

	ctx := context.Background()
	require.Equal(t, tier.Free, resolver.ResolveTier(ctx, "alice"))

	reconciler := billing.NewReconciler(billing.ReconcilerConfig{
		Users:         repo,
		Subscriptions: subs,
		Cache:         users,
	})
	h := NewWebhookHandler(reconciler, testWebhookSecret, zap.NewNop())

	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, signedWebhookRequest(t, subscriptionPayload(billing.EventSubscriptionCreated, "alice", "active"), testWebhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"handled":true}`, rec.Body.String())

	assert.Equal(t, tier.Premium, resolver.ResolveTier(ctx, "alice"))

	rec = httptest.NewRecorder()
	h.StripeWebhook(rec, signedWebhookRequest(t, subscriptionPayload(billing.EventSubscriptionDeleted, "alice", "canceled"), testWebhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, tier.Free, resolver.ResolveTier(ctx, "alice"))
}
