package bank

var (
	balancePrefix = []byte("bank/balance/")
	bankStateKey  = []byte("bank/state")
)

func balanceKey(owner Owner, asset AssetID) []byte {
	key := make([]byte, 0, len(balancePrefix)+len(owner)+1+len(asset))
	key = append(key, balancePrefix...)
	key = append(key, owner[:]...)
	key = append(key, '/')
	key = append(key, asset[:]...)
	return key
}
