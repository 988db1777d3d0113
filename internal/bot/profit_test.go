package bot

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNetProfit(t *testing.T) {
	tests := []struct {
		name    string
		buy     string
		sell    string
		size    string
		feeBuy  string
		feeSell string
		want    string
	}{
		{
			name: "положительный спред без комиссий",
			buy:  "100", sell: "101", size: "2",
			feeBuy: "0", feeSell: "0",
			want: "2",
		},
		{
			name: "комиссии съедают часть спреда",
			buy:  "100", sell: "101", size: "2",
			feeBuy: "0.001", feeSell: "0.001",
			// gross=2, fees = 100*2*0.001 + 101*2*0.001 = 0.402
			want: "1.598",
		},
		{
			name: "комиссии превышают спред",
			buy:  "100", sell: "100.01", size: "1",
			feeBuy: "0.001", feeSell: "0.001",
			// gross=0.01, fees = 0.1 + 0.10001
			want: "-0.19001",
		},
		{
			name: "отрицательная комиссия увеличивает прибыль",
			buy:  "100", sell: "101", size: "1",
			feeBuy: "0.0005", feeSell: "-0.0002",
			// gross=1, fees = 0.05 - 0.0202 = 0.0298
			want: "0.9702",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NetProfit(d(tt.buy), d(tt.sell), d(tt.size), d(tt.feeBuy), d(tt.feeSell))
			if !got.Equal(d(tt.want)) {
				t.Errorf("NetProfit = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEvaluateBothAsymmetricFees(t *testing.T) {
	fees := FeeSchedule{Taker: d("0.001"), Maker: d("0.0002")}

	long, short := EvaluateBoth(d("100"), d("102"), d("1"), fees)

	if long.Direction != DirectionLong || short.Direction != DirectionShort {
		t.Fatalf("directions: %s, %s", long.Direction, short.Direction)
	}
	if !long.Gross.Equal(d("2")) || !short.Gross.Equal(d("2")) {
		t.Fatalf("gross long=%s short=%s, want 2", long.Gross, short.Gross)
	}

	// LONG: 100*0.001 + 102*0.0002 = 0.1204
	if !long.Fees.Equal(d("0.1204")) {
		t.Errorf("long fees = %s, want 0.1204", long.Fees)
	}
	// SHORT: 100*0.0002 + 102*0.001 = 0.122
	if !short.Fees.Equal(d("0.122")) {
		t.Errorf("short fees = %s, want 0.122", short.Fees)
	}

	// Тейкер дешевле на более дешёвой ноге: LONG выгоднее
	if !long.Net.GreaterThan(short.Net) {
		t.Errorf("long net %s not greater than short net %s", long.Net, short.Net)
	}
}

func TestPickDirection(t *testing.T) {
	mk := func(dir Direction, net string) ProfitEstimate {
		return ProfitEstimate{Direction: dir, Net: d(net)}
	}

	tests := []struct {
		name      string
		long      ProfitEstimate
		short     ProfitEstimate
		minProfit string
		wantDir   Direction
		wantOK    bool
	}{
		{
			name: "лонг выигрывает",
			long: mk(DirectionLong, "1.5"), short: mk(DirectionShort, "1.2"),
			minProfit: "1", wantDir: DirectionLong, wantOK: true,
		},
		{
			name: "шорт выигрывает",
			long: mk(DirectionLong, "0.8"), short: mk(DirectionShort, "1.3"),
			minProfit: "1", wantDir: DirectionShort, wantOK: true,
		},
		{
			name: "порог включительный: net == minProfit проходит",
			long: mk(DirectionLong, "1"), short: mk(DirectionShort, "0.5"),
			minProfit: "1", wantDir: DirectionLong, wantOK: true,
		},
		{
			name: "чуть ниже порога отклоняется",
			long: mk(DirectionLong, "0.999999"), short: mk(DirectionShort, "0.9"),
			minProfit: "1", wantOK: false,
		},
		{
			name: "равенство вариантов отдаёт лонг",
			long: mk(DirectionLong, "2"), short: mk(DirectionShort, "2"),
			minProfit: "1", wantDir: DirectionLong, wantOK: true,
		},
		{
			name: "оба убыточны",
			long: mk(DirectionLong, "-0.1"), short: mk(DirectionShort, "-0.2"),
			minProfit: "0", wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PickDirection(tt.long, tt.short, d(tt.minProfit))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Direction != tt.wantDir {
				t.Errorf("direction = %s, want %s", got.Direction, tt.wantDir)
			}
		})
	}
}
