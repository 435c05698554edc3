package state

import "github.com/holiman/uint256"

var (
	membershipTokenPrefix    = []byte("membership/token/")
	membershipCounterKey     = []byte("membership/token-counter")
	membershipApprovalPrefix = []byte("membership/approval/")
	membershipOperatorPrefix = []byte("membership/operator/")
	loyaltyConfigKeyBytes    = []byte("loyalty/config")
	loyaltyBalancePrefix     = []byte("loyalty/balance/")
)

// Token identifiers are rendered as 32-byte big-endian words so every key has
// a fixed width and lexicographic order matches numeric order.

func tokenKey(id *uint256.Int) []byte {
	word := id.Bytes32()
	key := make([]byte, len(membershipTokenPrefix)+len(word))
	copy(key, membershipTokenPrefix)
	copy(key[len(membershipTokenPrefix):], word[:])
	return key
}

func tokenCounterKey() []byte {
	return append([]byte(nil), membershipCounterKey...)
}

func approvalKey(id *uint256.Int) []byte {
	word := id.Bytes32()
	key := make([]byte, len(membershipApprovalPrefix)+len(word))
	copy(key, membershipApprovalPrefix)
	copy(key[len(membershipApprovalPrefix):], word[:])
	return key
}

func operatorKey(holder, operator [20]byte) []byte {
	key := make([]byte, len(membershipOperatorPrefix)+len(holder)+len(operator))
	copy(key, membershipOperatorPrefix)
	copy(key[len(membershipOperatorPrefix):], holder[:])
	copy(key[len(membershipOperatorPrefix)+len(holder):], operator[:])
	return key
}

func loyaltyConfigKey() []byte {
	return append([]byte(nil), loyaltyConfigKeyBytes...)
}

func balanceKey(addr [20]byte, id *uint256.Int) []byte {
	word := id.Bytes32()
	key := make([]byte, len(loyaltyBalancePrefix)+len(addr)+len(word))
	copy(key, loyaltyBalancePrefix)
	copy(key[len(loyaltyBalancePrefix):], addr[:])
	copy(key[len(loyaltyBalancePrefix)+len(addr):], word[:])
	return key
}
