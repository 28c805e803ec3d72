package models

import (
	"strconv"
	"strings"
)

// QuotaStatus classifies quota usage for an account.
type QuotaStatus string

const (
	QuotaNormal   QuotaStatus = "normal"
	QuotaWarning  QuotaStatus = "warning"
	QuotaCritical QuotaStatus = "critical"
	QuotaUnknown  QuotaStatus = "unknown"
)

// QuotaInfo is the per-account quota summary stored alongside the
// credential material.
type QuotaInfo struct {
	RemainingAmount string      `json:"remaining_amount"`
	UsagePercentage float64     `json:"usage_percentage"`
	Status          QuotaStatus `json:"status"`
}

// ClassifyUsage maps a usage percentage to a status bucket.
func ClassifyUsage(pct float64) QuotaStatus {
	switch {
	case pct > 90:
		return QuotaCritical
	case pct > 80:
		return QuotaWarning
	default:
		return QuotaNormal
	}
}

// ComputeQuotaInfo derives a QuotaInfo from the current and maximum amounts
// reported by the quota endpoint. The provider serializes amounts as decimal
// strings, occasionally with a trailing dot. Unparsable input yields status
// unknown rather than an error.
func ComputeQuotaInfo(currentAmount, maximumAmount string) *QuotaInfo {
	info := &QuotaInfo{
		RemainingAmount: "N/A",
		Status:          QuotaUnknown,
	}

	current, err := parseAmount(currentAmount)
	if err != nil {
		return info
	}
	maximum, err := parseAmount(maximumAmount)
	if err != nil || maximum == 0 {
		return info
	}

	info.RemainingAmount = strconv.FormatFloat(maximum-current, 'f', -1, 64)
	info.UsagePercentage = current / maximum * 100
	info.Status = ClassifyUsage(info.UsagePercentage)
	return info
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimRight(strings.TrimSpace(s), "."), 64)
}
