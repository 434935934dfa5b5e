package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voltmart/storefront/internal/platform/auth"
	"github.com/voltmart/storefront/internal/platform/httpx"
	"github.com/voltmart/storefront/internal/services"
)

const (
	codeLookupLimit  = 20
	codeLookupWindow = time.Minute
)

// ReferralHandlers exposes signup with a referral code, code validation and referral stats.
type ReferralHandlers struct {
	authn     *auth.Authenticator
	referrals services.ReferralEngine
	limiter   *keyedLimiter
}

// ReferralOption customises ReferralHandlers.
type ReferralOption func(*ReferralHandlers)

// WithCodeLookupLimit bounds code validations per caller and window. A zero limit disables it.
func WithCodeLookupLimit(limit int, window time.Duration, clock func() time.Time) ReferralOption {
	return func(h *ReferralHandlers) {
		h.limiter = newKeyedLimiter(limit, window, clock)
	}
}

// NewReferralHandlers constructs ReferralHandlers. Code lookups are rate limited per caller.
func NewReferralHandlers(authn *auth.Authenticator, referrals services.ReferralEngine, opts ...ReferralOption) *ReferralHandlers {
	h := &ReferralHandlers{
		authn:     authn,
		referrals: referrals,
		limiter:   newKeyedLimiter(codeLookupLimit, codeLookupWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /users:register and /referrals.
func (h *ReferralHandlers) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authn.RequireFirebaseAuth())
		r.Post("/users:register", h.register)
		r.Get("/referrals", h.summary)
		r.Get("/referrals/codes/{code}", h.validateCode)
	})
}

type registerRequest struct {
	Name         string `json:"name"`
	ReferralCode string `json:"referral_code"`
}

type referralSummaryResponse struct {
	Code                string            `json:"code"`
	TotalReferrals      int               `json:"total_referrals"`
	SuccessfulReferrals int               `json:"successful_referrals"`
	TotalEarned         int64             `json:"total_earned"`
	Referrals           []referralPayload `json:"referrals"`
}

func (h *ReferralHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.referrals == nil {
		serviceUnavailable(ctx, w, "referral")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req registerRequest
	if err := decodeJSONBody(r, 0, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = identity.Name
	}

	user, err := h.referrals.RegisterWithReferral(ctx, services.RegisterUserCommand{
		UserID:       identity.UID,
		Name:         name,
		Email:        identity.Email,
		Role:         identity.Role,
		ReferralCode: strings.TrimSpace(req.ReferralCode),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"user": buildUserPayload(user)})
}

func (h *ReferralHandlers) validateCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.referrals == nil {
		serviceUnavailable(ctx, w, "referral")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if allowed, wait := h.limiter.Allow(identity.UID); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many referral code lookups", http.StatusTooManyRequests))
		return
	}

	info, err := h.referrals.ValidateReferralCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := map[string]any{"valid": info.Valid}
	if info.Valid {
		resp["referrer_name"] = info.ReferrerName
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ReferralHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.referrals == nil {
		serviceUnavailable(ctx, w, "referral")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	summary, err := h.referrals.Stats(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := referralSummaryResponse{
		Code:                summary.Code,
		TotalReferrals:      summary.Stats.TotalReferrals,
		SuccessfulReferrals: summary.Stats.SuccessfulReferrals,
		TotalEarned:         summary.Stats.TotalEarned,
		Referrals:           make([]referralPayload, 0, len(summary.Referrals)),
	}
	for _, ref := range summary.Referrals {
		resp.Referrals = append(resp.Referrals, buildReferralPayload(ref))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
