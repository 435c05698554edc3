package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"perkledger/core/types"
)

const (
	// TypeLoyaltyTokenMinted is emitted when a membership token is issued to
	// a holder.
	TypeLoyaltyTokenMinted = "loyalty.token.minted"
	// TypeLoyaltyTokenBurned is emitted when a membership token is revoked.
	TypeLoyaltyTokenBurned = "loyalty.token.burned"
	// TypeLoyaltyPointsTransferred is emitted when points move between
	// holders under the same token.
	TypeLoyaltyPointsTransferred = "loyalty.points.transferred"
	// TypeLoyaltyPointsRedeemed is emitted when a holder destroys points in
	// exchange for an off-ledger benefit.
	TypeLoyaltyPointsRedeemed = "loyalty.points.redeemed"
	// TypeLoyaltyPointsCredited is emitted when the program operator grants
	// points to a holder.
	TypeLoyaltyPointsCredited = "loyalty.points.credited"
)

func hexAddress(addr [20]byte) string {
	return "0x" + common.Bytes2Hex(addr[:])
}

func copyAmount(amount *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(amount)
}

// TokenMinted captures the issuance of a membership token.
type TokenMinted struct {
	Holder  [20]byte
	TokenID *big.Int
}

// EventType implements the Event interface.
func (TokenMinted) EventType() string { return TypeLoyaltyTokenMinted }

// Event converts the issuance details to the generic event payload.
func (e TokenMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeLoyaltyTokenMinted,
		Attributes: map[string]string{
			"holder":  hexAddress(e.Holder),
			"tokenId": copyAmount(e.TokenID).String(),
		},
	}
}

// TokenBurned captures the revocation of a membership token. Caller is the
// address that requested the burn; it may differ from the holder when a
// delegate acts on the holder's behalf.
type TokenBurned struct {
	Holder  [20]byte
	Caller  [20]byte
	TokenID *big.Int
}

// EventType implements the Event interface.
func (TokenBurned) EventType() string { return TypeLoyaltyTokenBurned }

// Event converts the revocation details to the generic event payload.
func (e TokenBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeLoyaltyTokenBurned,
		Attributes: map[string]string{
			"holder":  hexAddress(e.Holder),
			"caller":  hexAddress(e.Caller),
			"tokenId": copyAmount(e.TokenID).String(),
		},
	}
}

// LoyaltyPointsTransferred captures a point transfer between two holders of
// the same token. Zero-amount transfers are legal and still emit.
type LoyaltyPointsTransferred struct {
	From    [20]byte
	To      [20]byte
	TokenID *big.Int
	Amount  *big.Int
}

// EventType implements the Event interface.
func (LoyaltyPointsTransferred) EventType() string { return TypeLoyaltyPointsTransferred }

// Event converts the transfer details to the generic event payload.
func (e LoyaltyPointsTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeLoyaltyPointsTransferred,
		Attributes: map[string]string{
			"from":    hexAddress(e.From),
			"to":      hexAddress(e.To),
			"tokenId": copyAmount(e.TokenID).String(),
			"amount":  copyAmount(e.Amount).String(),
		},
	}
}

// LoyaltyPointsRedeemed captures a redemption. Redeemed points leave the
// system entirely.
type LoyaltyPointsRedeemed struct {
	Holder  [20]byte
	TokenID *big.Int
	Amount  *big.Int
}

// EventType implements the Event interface.
func (LoyaltyPointsRedeemed) EventType() string { return TypeLoyaltyPointsRedeemed }

// Event converts the redemption details to the generic event payload.
func (e LoyaltyPointsRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeLoyaltyPointsRedeemed,
		Attributes: map[string]string{
			"holder":  hexAddress(e.Holder),
			"tokenId": copyAmount(e.TokenID).String(),
			"amount":  copyAmount(e.Amount).String(),
		},
	}
}

// LoyaltyPointsCredited captures an operator grant of points to a holder.
type LoyaltyPointsCredited struct {
	Caller  [20]byte
	Holder  [20]byte
	TokenID *big.Int
	Amount  *big.Int
}

// EventType implements the Event interface.
func (LoyaltyPointsCredited) EventType() string { return TypeLoyaltyPointsCredited }

// Event converts the credit details to the generic event payload.
func (e LoyaltyPointsCredited) Event() *types.Event {
	return &types.Event{
		Type: TypeLoyaltyPointsCredited,
		Attributes: map[string]string{
			"caller":  hexAddress(e.Caller),
			"holder":  hexAddress(e.Holder),
			"tokenId": copyAmount(e.TokenID).String(),
			"amount":  copyAmount(e.Amount).String(),
		},
	}
}
