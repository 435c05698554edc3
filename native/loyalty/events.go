package loyalty

import (
	"math/big"

	"perkledger/core/events"
	"perkledger/core/types"
)

func copyID(id *big.Int) *big.Int {
	if id == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(id)
}

func newTokenMintedEvent(holder [20]byte, tokenID *big.Int) events.TokenMinted {
	return events.TokenMinted{Holder: holder, TokenID: copyID(tokenID)}
}

func newTokenBurnedEvent(token *types.Token, caller [20]byte) events.TokenBurned {
	if token == nil {
		return events.TokenBurned{Caller: caller, TokenID: big.NewInt(0)}
	}
	return events.TokenBurned{
		Holder:  token.Holder,
		Caller:  caller,
		TokenID: copyID(token.ID),
	}
}

func newPointsTransferredEvent(from, to [20]byte, tokenID, amount *big.Int) events.LoyaltyPointsTransferred {
	return events.LoyaltyPointsTransferred{
		From:    from,
		To:      to,
		TokenID: copyID(tokenID),
		Amount:  copyID(amount),
	}
}

func newPointsRedeemedEvent(holder [20]byte, tokenID, amount *big.Int) events.LoyaltyPointsRedeemed {
	return events.LoyaltyPointsRedeemed{
		Holder:  holder,
		TokenID: copyID(tokenID),
		Amount:  copyID(amount),
	}
}

func newPointsCreditedEvent(caller, holder [20]byte, tokenID, amount *big.Int) events.LoyaltyPointsCredited {
	return events.LoyaltyPointsCredited{
		Caller:  caller,
		Holder:  holder,
		TokenID: copyID(tokenID),
		Amount:  copyID(amount),
	}
}
