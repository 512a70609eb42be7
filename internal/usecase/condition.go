package usecase

import (
	"net"
	"strings"
	"time"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// Condition category names surfaced in decision reasons and audit records.
const (
	ConditionCategoryTime   = "time"
	ConditionCategoryIP     = "ip"
	ConditionCategoryDevice = "device"
)

// EvaluateTime reports whether the instant satisfies the time condition.
// Bounds, days-of-week and hours-of-day are independent and conjunctive; an
// absent sub-constraint always passes. A nil condition never blocks.
func EvaluateTime(cond *domain.TimeCondition, now time.Time) bool {
	if cond == nil {
		return true
	}

	if cond.StartTime != nil && now.Before(*cond.StartTime) {
		return false
	}
	if cond.EndTime != nil && now.After(*cond.EndTime) {
		return false
	}

	if len(cond.DaysOfWeek) > 0 {
		// Condition documents number days 0=Monday through 6=Sunday;
		// time.Weekday starts the week on Sunday.
		day := (int(now.Weekday()) + 6) % 7
		if !containsInt(cond.DaysOfWeek, day) {
			return false
		}
	}

	if len(cond.HoursOfDay) > 0 {
		if !containsInt(cond.HoursOfDay, now.Hour()) {
			return false
		}
	}

	return true
}

// EvaluateIP reports whether the origin address satisfies the IP condition.
// Block lists are checked first and take precedence over allow lists; an
// empty allow list means unrestricted. A malformed origin address or
// condition entry fails closed for this category.
func EvaluateIP(cond *domain.IPCondition, originIP string) bool {
	if cond == nil {
		return true
	}

	origin := net.ParseIP(strings.TrimSpace(originIP))
	if origin == nil {
		return false
	}

	for _, blocked := range cond.BlockedIPs {
		if ip := net.ParseIP(blocked); ip != nil && ip.Equal(origin) {
			return false
		}
	}

	for _, blocked := range cond.BlockedCIDRs {
		_, network, err := net.ParseCIDR(blocked)
		if err != nil {
			// Unparsable block entry: fail closed rather than silently
			// narrowing the block list.
			return false
		}
		if network.Contains(origin) {
			return false
		}
	}

	if len(cond.AllowedIPs) == 0 && len(cond.AllowedCIDRs) == 0 {
		return true
	}

	for _, allowed := range cond.AllowedIPs {
		if ip := net.ParseIP(allowed); ip != nil && ip.Equal(origin) {
			return true
		}
	}

	for _, allowed := range cond.AllowedCIDRs {
		_, network, err := net.ParseCIDR(allowed)
		if err != nil {
			continue
		}
		if network.Contains(origin) {
			return true
		}
	}

	return false
}

// EvaluateDevice reports whether the device descriptor satisfies the device
// condition. Matching is case-insensitive; blocked user agent substrings are
// checked first. RequireVerification demands the caller's context confirms
// the device was verified by the identity layer.
func EvaluateDevice(cond *domain.DeviceCondition, deviceType, userAgent string, verified bool) bool {
	if cond == nil {
		return true
	}

	loweredUA := strings.ToLower(userAgent)

	for _, blocked := range cond.BlockedUserAgents {
		if blocked != "" && strings.Contains(loweredUA, strings.ToLower(blocked)) {
			return false
		}
	}

	if len(cond.AllowedDeviceTypes) > 0 {
		if !containsFold(cond.AllowedDeviceTypes, deviceType) {
			return false
		}
	}

	if len(cond.AllowedUserAgents) > 0 {
		matched := false
		for _, allowed := range cond.AllowedUserAgents {
			if allowed != "" && strings.Contains(loweredUA, strings.ToLower(allowed)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if cond.RequireVerification && !verified {
		return false
	}

	return true
}

// EvaluateConditions gates a grant on every configured condition category.
// It returns true when all present categories pass, or the name of the first
// failing category otherwise. Absent categories never block.
func EvaluateConditions(conds domain.BindingConditions, actx domain.AccessContext) (bool, string) {
	if !EvaluateTime(conds.Time, actx.Now) {
		return false, ConditionCategoryTime
	}
	if !EvaluateIP(conds.IP, actx.OriginIP) {
		return false, ConditionCategoryIP
	}
	if !EvaluateDevice(conds.Device, actx.DeviceType, actx.UserAgent, actx.DeviceVerified) {
		return false, ConditionCategoryDevice
	}
	return true, ""
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
