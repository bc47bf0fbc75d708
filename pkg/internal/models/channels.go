package models

import (
	"fmt"
	"slices"
	"strings"
)

type ChannelType = uint8

const (
	ChannelTypeCommon = ChannelType(iota)
	ChannelTypeDirect
)

// Scope addresses one conversation, either a community channel or a
// direct conversation between two accounts.
type Scope struct {
	Type ChannelType
	// ID is the community channel id, empty for direct scopes.
	ID string
	// Peers holds the two participants of a direct scope in sorted order.
	Peers [2]string
}

func CommunityScope(id string) Scope {
	return Scope{Type: ChannelTypeCommon, ID: id}
}

func DirectScope(a, b string) Scope {
	peers := []string{a, b}
	slices.Sort(peers)
	return Scope{Type: ChannelTypeDirect, Peers: [2]string{peers[0], peers[1]}}
}

func (v Scope) IsDirect() bool {
	return v.Type == ChannelTypeDirect
}

func (v Scope) IsZero() bool {
	return v == Scope{}
}

func (v Scope) String() string {
	if v.IsDirect() {
		return fmt.Sprintf("direct:%s,%s", v.Peers[0], v.Peers[1])
	}
	if v.ID == "" {
		return ""
	}
	return "community:" + v.ID
}

// Includes reports whether the account takes part in a direct scope.
// Community scopes answer false; their membership lives on the channel.
func (v Scope) Includes(account string) bool {
	return v.IsDirect() && (v.Peers[0] == account || v.Peers[1] == account)
}

func ParseScope(raw string) (Scope, error) {
	kind, rest, ok := strings.Cut(raw, ":")
	if !ok || len(rest) == 0 {
		return Scope{}, fmt.Errorf("invalid scope %q", raw)
	}
	switch kind {
	case "community":
		return CommunityScope(rest), nil
	case "direct":
		a, b, ok := strings.Cut(rest, ",")
		if !ok || len(a) == 0 || len(b) == 0 || strings.Contains(b, ",") {
			return Scope{}, fmt.Errorf("direct scope %q needs exactly two peers", raw)
		}
		if a == b {
			return Scope{}, fmt.Errorf("direct scope %q needs two distinct peers", raw)
		}
		return DirectScope(a, b), nil
	default:
		return Scope{}, fmt.Errorf("unknown scope kind %q", kind)
	}
}

func (v Scope) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Scope) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = Scope{}
		return nil
	}
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// PowerLevelOwner is the power level from which a member may delete other
// members' messages for everyone.
const PowerLevelOwner = 100

type ChannelMember struct {
	AccountID  string `json:"account_id" validate:"required"`
	Name       string `json:"name"`
	Nick       string `json:"nick"`
	PowerLevel int    `json:"power_level"`
}

func (v ChannelMember) DisplayName() string {
	if len(v.Nick) > 0 {
		return v.Nick
	}
	if len(v.Name) > 0 {
		return v.Name
	}
	return v.AccountID
}

type Channel struct {
	Scope   Scope           `json:"scope"`
	Name    string          `json:"name"`
	Members []ChannelMember `json:"members"`
}

func (v Channel) DisplayText() string {
	if v.Scope.IsDirect() {
		return "DM"
	}
	if len(v.Name) > 0 {
		return v.Name
	}
	return v.Scope.String()
}
