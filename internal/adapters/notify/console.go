package notify

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// DefaultDecimals es la precisión de los montos nativos (1 coin = 1e9 unidades).
const DefaultDecimals = 9

// Console implementa ports.Notifier.
type Console struct {
	out      io.Writer
	table    bool
	decimals int32
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table, decimals: DefaultDecimals}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, decimals: DefaultDecimals}
}

// WithDecimals cambia la precisión con la que se muestran los montos.
func (c *Console) WithDecimals(d int32) *Console {
	c.decimals = d
	return c
}

// NotifyRounds imprime el estado del mercado y los rounds recientes.
func (c *Console) NotifyRounds(_ context.Context, snap domain.MarketSnapshot) error {
	c.printHeader(snap)

	if len(snap.Rounds) == 0 {
		fmt.Fprintln(c.out, "  no rounds yet")
		return nil
	}
	if c.table {
		c.printTable(snap)
	} else {
		c.printCompact(snap)
	}
	return nil
}

func (c *Console) printHeader(snap domain.MarketSnapshot) {
	st := snap.State
	auto := "ON"
	if !st.AutomationEnabled {
		auto = "OFF"
	}
	status := "running"
	switch {
	case st.Paused:
		status = "PAUSED"
	case !st.GenesisStarted:
		status = "awaiting genesis start"
	case !st.GenesisLocked:
		status = "awaiting genesis lock"
	}

	fmt.Fprintf(c.out, "\n[%s] %s | epoch %d | %s | automation %s | treasury %s | balance %s\n",
		snap.TakenAt.Format("15:04:05"),
		snap.Config.PoolID,
		st.CurrentEpoch,
		status,
		auto,
		c.Amount(st.Treasury),
		c.Amount(snap.Balance),
	)
}

// printCompact imprime una línea por round.
func (c *Console) printCompact(snap domain.MarketSnapshot) {
	for _, r := range snap.Rounds {
		var sb strings.Builder
		fmt.Fprintf(&sb, "  #%d %-12s pool %s (up %s / down %s)",
			r.Epoch, r.Phase(snap.TakenAt),
			c.Amount(r.TotalStake), c.Amount(r.UpStake), c.Amount(r.DownStake))
		if r.Locked() {
			fmt.Fprintf(&sb, " lock %d", r.LockPrice)
		}
		if r.Closed() {
			fmt.Fprintf(&sb, " close %d → %s", r.ClosePrice, r.Outcome())
		}
		fmt.Fprintln(c.out, sb.String())
	}
}

// printTable imprime la tabla de rounds, el más reciente primero.
func (c *Console) printTable(snap domain.MarketSnapshot) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Epoch", "Phase", "Lock at", "Close at", "Lock px", "Close px", "Outcome", "Pool", "Up x", "Down x")

	for _, r := range snap.Rounds {
		table.Append(
			fmt.Sprintf("%d", r.Epoch),
			r.Phase(snap.TakenAt),
			r.LockTime.Format("15:04:05"),
			r.CloseTime.Format("15:04:05"),
			price(r.LockPrice),
			price(r.ClosePrice),
			string(r.Outcome()),
			c.Amount(r.TotalStake),
			multiplier(r, r.UpStake, snap.Config.FeeBps),
			multiplier(r, r.DownStake, snap.Config.FeeBps),
		)
	}

	table.Render()
	fmt.Fprintln(c.out, "  Up x / Down x = pago por unidad apostada si gana ese lado, neto de fee")
}

// Amount formatea un monto nativo con la precisión configurada.
func (c *Console) Amount(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -c.decimals).String()
}

func price(p uint64) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", p)
}

// multiplier es total*(1-fee)/side: lo que cobra una unidad del lado ganador.
// Los rounds liquidados usan el pool real.
func multiplier(r domain.Round, side uint64, feeBps uint32) string {
	if side == 0 {
		return "-"
	}
	pool := decimal.NewFromBigInt(new(big.Int).SetUint64(r.TotalStake), 0)
	if r.Settled {
		pool = decimal.NewFromBigInt(new(big.Int).SetUint64(r.PayoutPool), 0)
	} else {
		net := decimal.NewFromInt(domain.BasisPoints - int64(feeBps)).Div(decimal.NewFromInt(domain.BasisPoints))
		pool = pool.Mul(net)
	}
	s := decimal.NewFromBigInt(new(big.Int).SetUint64(side), 0)
	return pool.Div(s).StringFixed(2) + "x"
}
