package models

import (
	"sort"
	"strings"
)

// Gender values accepted at registration.
const (
	GenderMale         = "male"
	GenderFemale       = "female"
	GenderOther        = "other"
	GenderNotSpecified = "not-specified"
)

// Chat modes. Pairs are always mode-homogeneous.
const (
	ModeText  = "text"
	ModeVideo = "video"
)

// Gender preference values. PrefAny matches everyone.
const (
	PrefAny    = "any"
	PrefMale   = "male"
	PrefFemale = "female"
	PrefOther  = "other"
)

const (
	MinAge = 13
	MaxAge = 120
)

// AgeRange is the partner age window a peer declares.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Profile holds the normalized registration data for one peer. It is
// immutable after registration except for ChatMode, which may be re-set
// when a new search starts.
type Profile struct {
	ID               string   `json:"id"`
	Username         string   `json:"username"`
	Gender           string   `json:"gender"`
	Age              int      `json:"age"`
	Interests        []string `json:"interests"`
	ChatMode         string   `json:"chatMode"`
	GenderPreference string   `json:"genderPreference"`
	AgeRange         AgeRange `json:"ageRange"`
	Priority         float64  `json:"priority"`
}

// RegisterPayload is the raw registration input before normalization.
type RegisterPayload struct {
	Username         string    `json:"username"`
	Gender           string    `json:"gender"`
	Age              int       `json:"age"`
	Interests        []string  `json:"interests"`
	ChatMode         string    `json:"chatMode"`
	GenderPreference string    `json:"genderPreference"`
	AgeRange         *AgeRange `json:"ageRange"`
	Priority         float64   `json:"priority"`
}

// NewProfile normalizes a registration payload into a Profile. Missing
// fields are coerced to defaults; malformed fields fail with
// ErrInvalidProfile.
func NewProfile(peerID string, in RegisterPayload) (*Profile, error) {
	if peerID == "" {
		return nil, ErrInvalidProfile
	}

	p := &Profile{
		ID:       peerID,
		Username: strings.TrimSpace(in.Username),
	}
	if p.Username == "" {
		p.Username = "Stranger"
	}

	switch in.Gender {
	case "", GenderNotSpecified:
		p.Gender = GenderNotSpecified
	case GenderMale, GenderFemale, GenderOther:
		p.Gender = in.Gender
	default:
		return nil, ErrInvalidProfile
	}

	switch in.ChatMode {
	case "":
		p.ChatMode = ModeText
	case ModeText, ModeVideo:
		p.ChatMode = in.ChatMode
	default:
		return nil, ErrInvalidProfile
	}

	switch in.GenderPreference {
	case "", PrefAny:
		p.GenderPreference = PrefAny
	case PrefMale, PrefFemale, PrefOther:
		p.GenderPreference = in.GenderPreference
	default:
		return nil, ErrInvalidProfile
	}

	p.Age = clampInt(in.Age, MinAge, MaxAge)
	if in.Age == 0 {
		p.Age = 18
	}

	if in.AgeRange == nil {
		p.AgeRange = AgeRange{Min: MinAge, Max: MaxAge}
	} else {
		if in.AgeRange.Min > in.AgeRange.Max {
			return nil, ErrInvalidProfile
		}
		p.AgeRange = AgeRange{
			Min: clampInt(in.AgeRange.Min, MinAge, MaxAge),
			Max: clampInt(in.AgeRange.Max, MinAge, MaxAge),
		}
	}

	p.Priority = in.Priority
	if p.Priority < 1.0 {
		p.Priority = 1.0
	}

	p.Interests = NormalizeInterests(in.Interests)
	return p, nil
}

// NormalizeInterests trims, lowercases and deduplicates interest tags,
// dropping empties. The result is sorted for stable comparison.
func NormalizeInterests(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// AllowsGender reports whether this profile's gender preference is
// satisfied by the partner's gender.
func (p *Profile) AllowsGender(partnerGender string) bool {
	return p.GenderPreference == PrefAny || p.GenderPreference == partnerGender
}

// AllowsAge reports whether the partner's age falls inside this
// profile's declared range.
func (p *Profile) AllowsAge(partnerAge int) bool {
	return partnerAge >= p.AgeRange.Min && partnerAge <= p.AgeRange.Max
}

// IsPremium reports whether the peer carries an elevated priority.
func (p *Profile) IsPremium() bool {
	return p.Priority > 1.0
}

// SharedInterests returns the interests both profiles declared.
func (p *Profile) SharedInterests(other *Profile) []string {
	set := make(map[string]struct{}, len(p.Interests))
	for _, tag := range p.Interests {
		set[tag] = struct{}{}
	}
	var shared []string
	for _, tag := range other.Interests {
		if _, ok := set[tag]; ok {
			shared = append(shared, tag)
		}
	}
	sort.Strings(shared)
	return shared
}

// Public returns the subset of the profile that may be shown to a
// matched partner.
func (p *Profile) Public() PublicProfile {
	return PublicProfile{
		Username:  p.Username,
		Gender:    p.Gender,
		Age:       p.Age,
		Interests: p.Interests,
		ChatMode:  p.ChatMode,
	}
}

// PublicProfile is the partner-visible view of a profile. The peer id is
// deliberately absent.
type PublicProfile struct {
	Username  string   `json:"username"`
	Gender    string   `json:"gender"`
	Age       int      `json:"age"`
	Interests []string `json:"interests"`
	ChatMode  string   `json:"chatMode"`
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
