package pipeline

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vertaai/driftgate/pkg/fault"
)

// HumanAction is what a reviewer decided.
type HumanAction string

const (
	ActionApprove HumanAction = "approve"
	ActionReject  HumanAction = "reject"
	ActionEdit    HumanAction = "edit"
	ActionSnooze  HumanAction = "snooze"
)

var knownActions = map[HumanAction]bool{
	ActionApprove: true, ActionReject: true, ActionEdit: true, ActionSnooze: true,
}

// CallbackTTL bounds how long an approval link stays valid.
const CallbackTTL = 72 * time.Hour

// callbackClaims is the signed payload embedded in notification buttons.
// The re-entry endpoint trusts nothing else.
type callbackClaims struct {
	WorkspaceID string      `json:"ws"`
	DriftID     string      `json:"drift"`
	ProposalID  string      `json:"proposal"`
	Action      HumanAction `json:"action"`
	jwt.RegisteredClaims
}

// SignCallback mints one token per (drift, proposal, action).
func SignCallback(key []byte, workspaceID, driftID, proposalID string, action HumanAction, now time.Time) (string, error) {
	claims := callbackClaims{
		WorkspaceID: workspaceID,
		DriftID:     driftID,
		ProposalID:  proposalID,
		Action:      action,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "driftgate",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(CallbackTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Callback is the verified content of a human re-entry.
type Callback struct {
	WorkspaceID string
	DriftID     string
	ProposalID  string
	Action      HumanAction
	ActorID     string
}

// VerifyCallback checks signature, expiry, and action vocabulary.
func VerifyCallback(key []byte, token string) (*Callback, error) {
	parsed, err := jwt.ParseWithClaims(token, &callbackClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fault.New(fault.KindUnauthorized, "unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithIssuer("driftgate"))
	if err != nil {
		return nil, fault.Wrap(fault.KindUnauthorized, err, "callback token")
	}
	claims, ok := parsed.Claims.(*callbackClaims)
	if !ok || !parsed.Valid {
		return nil, fault.New(fault.KindUnauthorized, "callback token invalid")
	}
	if !knownActions[claims.Action] {
		return nil, fault.New(fault.KindValidation, "unknown action %q", claims.Action)
	}
	return &Callback{
		WorkspaceID: claims.WorkspaceID,
		DriftID:     claims.DriftID,
		ProposalID:  claims.ProposalID,
		Action:      claims.Action,
	}, nil
}
