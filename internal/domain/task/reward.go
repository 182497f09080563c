package task

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

// maxRewardDigits bounds the integer part so cents always fit in int64.
const maxRewardDigits = 15

// amountPattern also matches a bare fraction (".50") and a trailing point ("5.").
var amountPattern = regexp.MustCompile(`-?(?:\d+(?:\.\d*)?|\.\d+)`)

// Reward is a task's payout in integer cents. A Reward decoded from a legacy
// record may be invalid; it then keeps its original text and parse error so
// completion can report it.
type Reward struct {
	cents int64
	raw   string
	err   error
}

// RewardFromCents builds a valid reward. Negative amounts are rejected.
func RewardFromCents(cents int64) (Reward, error) {
	if cents < 0 {
		return Reward{}, vaulterr.New(vaulterr.CodeValidation, "reward must not be negative")
	}
	return Reward{cents: cents}, nil
}

// RewardFromText normalizes free text such as "$5.50" into a reward. It never
// fails; an unusable text yields an invalid reward.
func RewardFromText(text string) Reward {
	cents, err := ParseRewardText(text)
	if err != nil {
		return Reward{raw: text, err: err}
	}
	return Reward{cents: cents}
}

// Cents returns the payout or a REWARD_PARSE error.
func (r Reward) Cents() (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.cents, nil
}

// Valid reports whether the reward carries a usable amount.
func (r Reward) Valid() bool {
	return r.err == nil
}

// String renders the reward as currency text, or the raw text when invalid.
func (r Reward) String() string {
	if r.err != nil {
		return r.raw
	}
	return FormatCents(r.cents)
}

// MarshalJSON writes valid rewards as a cent count and invalid ones as their
// original text, so a round trip through the store keeps them invalid.
func (r Reward) MarshalJSON() ([]byte, error) {
	if r.err != nil {
		return json.Marshal(r.raw)
	}
	return []byte(strconv.FormatInt(r.cents, 10)), nil
}

// UnmarshalJSON accepts a cent count, a free-text amount or null.
func (r *Reward) UnmarshalJSON(data []byte) error {
	*r = RewardFromJSON(data)
	return nil
}

// RewardFromJSON decodes the reward field of a stored task. Numbers are cent
// counts, strings are free text, missing or null means "0".
func RewardFromJSON(data json.RawMessage) Reward {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Reward{}
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return Reward{raw: string(data), err: rewardError(string(data), err)}
		}
		return RewardFromText(text)
	}
	cents, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil || f != float64(int64(f)) {
			return Reward{raw: string(data), err: rewardError(string(data), err)}
		}
		cents = int64(f)
	}
	if cents < 0 {
		return Reward{raw: string(data), err: rewardError(string(data), nil)}
	}
	return Reward{cents: cents}
}

// ParseRewardText extracts the first amount from text and converts it to
// cents, rounding half up past two decimals. "5.50", "$5.5" and "5.50 USD"
// all give 550. Thousands separators are ignored.
func ParseRewardText(text string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if cleaned == "" {
		return 0, rewardError(text, nil)
	}
	match := amountPattern.FindString(cleaned)
	if match == "" || strings.HasPrefix(match, "-") {
		return 0, rewardError(text, nil)
	}

	whole, frac, _ := strings.Cut(match, ".")
	whole = strings.TrimLeft(whole, "0")
	if len(whole) > maxRewardDigits {
		return 0, rewardError(text, nil)
	}
	var units int64
	if whole != "" {
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, rewardError(text, err)
		}
		units = v
	}

	// Two cent digits plus one rounding digit.
	padded := (frac + "000")[:3]
	centDigits, _ := strconv.ParseInt(padded[:2], 10, 64)
	cents := units*100 + centDigits
	if padded[2] >= '5' {
		cents++
	}
	return cents, nil
}

// FormatCents renders cents as a dollar amount, e.g. 550 -> "5.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	frac := strconv.FormatInt(cents%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + frac
}

func rewardError(text string, cause error) error {
	msg := "reward " + strconv.Quote(text) + " is not a non-negative amount"
	if cause != nil {
		return vaulterr.Wrap(vaulterr.CodeRewardParse, msg, cause)
	}
	return vaulterr.New(vaulterr.CodeRewardParse, msg)
}
