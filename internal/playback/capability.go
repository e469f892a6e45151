package playback

import (
	"slices"

	"github.com/justchokingaround/reel/internal/account"
)

// AllowedRates is the fixed set of playback rates subscribers may pick.
var AllowedRates = []float64{0.5, 0.75, 1, 1.25, 1.5, 2}

// CapabilityProfile is the set of in-session operations a tier allows. It is
// derived, never stored or mutated: a tier change produces a new profile.
type CapabilityProfile struct {
	Tier        account.Tier
	RateControl bool
	Rates       []float64
}

// ProfileFor maps a subscription tier to its capabilities.
func ProfileFor(tier account.Tier) CapabilityProfile {
	switch tier {
	case account.TierBasic, account.TierPremium:
		return CapabilityProfile{Tier: tier, RateControl: true, Rates: slices.Clone(AllowedRates)}
	default:
		return CapabilityProfile{Tier: account.TierNone}
	}
}

// CanChangeRate reports whether switching to rate is allowed.
func (p CapabilityProfile) CanChangeRate(rate float64) bool {
	return p.RateControl && slices.Contains(p.Rates, rate)
}
