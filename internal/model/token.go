package model

// Token names one of the two balance tables kept by the ledger.
type Token uint8

const (
	Collateral Token = iota + 1
	Reward
)

// Tokens lists every token in ledger order.
var Tokens = []Token{Collateral, Reward}

func (t Token) String() string {
	switch t {
	case Collateral:
		return "collateral"
	case Reward:
		return "reward"
	default:
		return "unknown"
	}
}

// Symbol is the ticker shown to participants.
func (t Token) Symbol() string {
	switch t {
	case Collateral:
		return "DAI"
	case Reward:
		return "HODL"
	default:
		return "?"
	}
}

func (t Token) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Token) UnmarshalText(text []byte) error {
	switch string(text) {
	case "collateral":
		*t = Collateral
	case "reward":
		*t = Reward
	default:
		return ErrUnknownToken
	}
	return nil
}
