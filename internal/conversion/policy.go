package conversion

import (
	"errors"
	"fmt"
	"grantcalc/internal/model"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownPolicy indicates a rounding policy id that is not part of the closed set.
var ErrUnknownPolicy = errors.New("unknown rounding policy")

// policyInfo describes one rounding policy.
type policyInfo struct {
	id          string
	label       string
	description string
	places      int32
	amount      func(*model.ConversionResult) decimal.Decimal
}

// policies is the closed set of rounding policies, in display order.
var policies = []struct {
	policy model.RoundingPolicy
	info   policyInfo
}{
	{
		policy: model.Exact,
		info: policyInfo{
			id:          "exact",
			label:       "Exact Amount",
			description: "Precise calculation",
			places:      4,
			amount:      func(r *model.ConversionResult) decimal.Decimal { return r.ExactTokenAmount },
		},
	},
	{
		policy: model.RoundUp,
		info: policyInfo{
			id:          "round",
			label:       "Round to Whole",
			description: "Clean grant amount",
			places:      0,
			amount:      func(r *model.ConversionResult) decimal.Decimal { return r.RoundedTokenAmount },
		},
	},
	{
		policy: model.RoundUpPlusBuffer,
		info: policyInfo{
			id:          "buffer",
			label:       "Round Up + 5%",
			description: "Price protection",
			places:      0,
			amount:      func(r *model.ConversionResult) decimal.Decimal { return r.BufferedTokenAmount },
		},
	},
}

func lookup(policy model.RoundingPolicy) (policyInfo, bool) {
	for _, p := range policies {
		if p.policy == policy {
			return p.info, true
		}
	}
	return policyInfo{}, false
}

// Policies returns every rounding policy in display order.
func Policies() []model.RoundingPolicy {
	out := make([]model.RoundingPolicy, 0, len(policies))
	for _, p := range policies {
		out = append(out, p.policy)
	}
	return out
}

// ParsePolicy maps a policy id ("exact", "round", "buffer") to its policy.
// Matching ignores case and surrounding spaces.
func ParsePolicy(id string) (model.RoundingPolicy, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range policies {
		if p.info.id == id {
			return p.policy, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (expected exact, round or buffer)", ErrUnknownPolicy, id)
}

// PolicyID returns the short id of policy, or "" if it is not a known policy.
func PolicyID(policy model.RoundingPolicy) string {
	info, _ := lookup(policy)
	return info.id
}

// LabelFor returns the display label of policy.
func LabelFor(policy model.RoundingPolicy) string {
	info, _ := lookup(policy)
	return info.label
}

// DescriptionFor returns the one-line description of policy.
func DescriptionFor(policy model.RoundingPolicy) string {
	info, _ := lookup(policy)
	return info.description
}

// DecimalPlaces returns how many decimal places amounts under policy are displayed with.
func DecimalPlaces(policy model.RoundingPolicy) int32 {
	info, _ := lookup(policy)
	return info.places
}

// AmountFor returns the token amount policy selects from result.
// It returns zero for a nil result or an unknown policy.
func AmountFor(result *model.ConversionResult, policy model.RoundingPolicy) decimal.Decimal {
	if result == nil {
		return decimal.Zero
	}

	info, ok := lookup(policy)
	if !ok {
		return decimal.Zero
	}
	return info.amount(result)
}

// FormatAmount renders AmountFor(result, policy) with the policy's decimal places.
func FormatAmount(result *model.ConversionResult, policy model.RoundingPolicy) string {
	return AmountFor(result, policy).StringFixed(DecimalPlaces(policy))
}
