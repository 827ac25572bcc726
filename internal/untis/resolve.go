package untis

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"berichtsheft/internal/domain"
)

type directorySchool struct {
	DisplayName string `json:"displayName"`
	LoginName   string `json:"loginName"`
	Server      string `json:"server"`
	Address     string `json:"address"`
}

type directoryResult struct {
	Schools []directorySchool `json:"schools"`
}

type directoryQuery struct {
	Search     string `json:"search"`
	SchoolName string `json:"schoolname"`
	Country    string `json:"country"`
	Student    bool   `json:"student"`
}

// Resolve asks the public school directory for institutions matching
// searchTerm and returns them ranked: candidates whose address contains
// localityFilter come first, ties keep directory order. When the
// directory is unreachable or returns nothing, the injected fallback
// list is used instead. An empty result is not an error; the session
// acquirer decides what exhaustion means.
func (c *Client) Resolve(ctx context.Context, searchTerm, localityFilter string, fallback []domain.TenantCandidate) []domain.TenantCandidate {
	if strings.TrimSpace(searchTerm) == "" {
		log.Printf("untis resolve skipped: empty search term, fallback=%d", len(fallback))
		return fallback
	}

	raw, err := c.call(ctx, c.DirectoryURL, "searchSchool", []directoryQuery{{
		Search:  searchTerm,
		Country: "DE",
		Student: true,
	}}, "")
	if err != nil {
		log.Printf("untis resolve directory error: %v (falling back to %d configured candidates)", err, len(fallback))
		return fallback
	}

	var result directoryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		log.Printf("untis resolve parse error: %v", err)
		return fallback
	}
	if len(result.Schools) == 0 {
		log.Printf("untis resolve empty for %q, fallback=%d", searchTerm, len(fallback))
		return fallback
	}

	candidates := make([]domain.TenantCandidate, 0, len(result.Schools))
	for _, s := range result.Schools {
		if s.LoginName == "" || s.Server == "" {
			continue
		}
		candidates = append(candidates, domain.TenantCandidate{
			DisplayName: s.DisplayName,
			TenantID:    s.LoginName,
			Server:      s.Server,
			Address:     s.Address,
		})
	}

	ranked := rankByLocality(candidates, localityFilter)
	log.Printf("untis resolve term=%q locality=%q candidates=%d", searchTerm, localityFilter, len(ranked))
	return ranked
}

// rankByLocality stably partitions candidates: address matches first,
// everything else after, both halves in directory order.
func rankByLocality(candidates []domain.TenantCandidate, locality string) []domain.TenantCandidate {
	locality = strings.TrimSpace(locality)
	if locality == "" {
		return candidates
	}

	matched := make([]domain.TenantCandidate, 0, len(candidates))
	var rest []domain.TenantCandidate
	needle := strings.ToLower(locality)
	for _, cand := range candidates {
		if strings.Contains(strings.ToLower(cand.Address), needle) {
			matched = append(matched, cand)
		} else {
			rest = append(rest, cand)
		}
	}
	return append(matched, rest...)
}
