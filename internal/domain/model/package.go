package model

import "github.com/shopspring/decimal"

// CoinPackage is a purchasable FanCoin bundle. Packages are a fixed
// in-code table; prices are BRL.
type CoinPackage struct {
	ID    string
	Label string
	Coins int64
	Bonus int64
	Price decimal.Decimal
}

// TotalCoins is the amount credited on a completed purchase.
func (p CoinPackage) TotalCoins() int64 { return p.Coins + p.Bonus }

var coinPackages = []CoinPackage{
	{ID: "pack_100", Label: "100 FanCoins", Coins: 100, Bonus: 0, Price: decimal.NewFromInt(1)},
	{ID: "pack_500", Label: "550 FanCoins (+10%)", Coins: 500, Bonus: 50, Price: decimal.NewFromInt(5)},
	{ID: "pack_1000", Label: "1.200 FanCoins (+20%)", Coins: 1000, Bonus: 200, Price: decimal.NewFromInt(10)},
	{ID: "pack_5000", Label: "6.500 FanCoins (+30%)", Coins: 5000, Bonus: 1500, Price: decimal.NewFromInt(50)},
	{ID: "pack_10000", Label: "15.000 FanCoins (+50%)", Coins: 10000, Bonus: 5000, Price: decimal.NewFromInt(100)},
}

// FindCoinPackage returns the package with the given id, or false.
func FindCoinPackage(id string) (CoinPackage, bool) {
	for _, p := range coinPackages {
		if p.ID == id {
			return p, true
		}
	}
	return CoinPackage{}, false
}

// CoinPackages returns the purchasable package table.
func CoinPackages() []CoinPackage { return coinPackages }

// Platform fee rates per payment kind, as fractions of the gross amount.
var (
	FeeSubscription = decimal.NewFromFloat(0.12)
	FeeTip          = decimal.NewFromFloat(0.08)
	FeePPV          = decimal.NewFromFloat(0.12)
	FeePurchase     = decimal.NewFromFloat(0.10)
)

// TipPlatformCut returns the platform's share of a tip in coins,
// rounded down so the creator never loses a fraction twice.
func TipPlatformCut(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(FeeTip).IntPart()
}

// PPVPlatformCut returns the platform's share of a PPV unlock in coins.
func PPVPlatformCut(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(FeePPV).IntPart()
}
