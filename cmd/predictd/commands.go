package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alejandrodnm/predictbot/internal/adapters/httpapi"
	"github.com/alejandrodnm/predictbot/internal/application/keeper"
	"github.com/alejandrodnm/predictbot/internal/domain"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// userCommands act on behalf of the address given as first argument.
var userCommands = map[string]func(ctx context.Context, a *app, args []string) error{
	"bet":              placeBet,
	"claim":            claim,
	"accept-ownership": acceptOwnership,
	"deposit":          deposit,
	"fund":             fund,
	"balance":          balance,
}

func runCommand(ctx context.Context, a *app, command string, args []string) error {
	if command == "status" {
		return a.report(ctx)
	}
	if fn, ok := userCommands[command]; ok {
		return fn(ctx, a, args)
	}

	owner, err := a.cfg.Owner()
	if err != nil {
		return fmt.Errorf("market.owner: %w", err)
	}
	e := a.engine

	switch command {
	case "init":
		mc, perr := a.cfg.MarketParams()
		if perr != nil {
			return perr
		}
		err = e.Initialize(ctx, owner, mc)
	case "genesis-start":
		err = e.GenesisStart(ctx, owner)
	case "genesis-lock":
		err = e.GenesisLock(ctx, owner)
	case "advance":
		err = e.Advance(ctx, owner)
	case "pause":
		err = e.Pause(ctx, owner)
	case "unpause":
		err = e.Unpause(ctx, owner)
	case "pause-automation":
		err = e.PauseAutomation(ctx, owner)
	case "resume-automation":
		err = e.ResumeAutomation(ctx, owner)
	case "transfer-ownership":
		if len(args) != 1 {
			return errors.New("usage: transfer-ownership <addr>")
		}
		err = e.TransferOwnership(ctx, owner, domain.Address(args[0]))
	case "claim-treasury":
		var amount uint64
		if amount, err = e.ClaimTreasury(ctx, owner); err == nil {
			slog.Info("treasury claimed", "owner", owner, "amount", amount)
		}
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return err
	}
	return a.report(ctx)
}

func (a *app) report(ctx context.Context) error {
	snap, err := a.engine.Snapshot(ctx, a.cfg.Keeper.Rounds)
	if err != nil {
		return err
	}
	return a.notifier.NotifyRounds(ctx, snap)
}

func placeBet(ctx context.Context, a *app, args []string) error {
	if len(args) != 4 && len(args) != 5 {
		return errors.New("usage: bet <addr> <epoch> <up|down> <stake> [paid]")
	}
	user, err := domain.ParseAddress(args[0])
	if err != nil {
		return err
	}
	epoch, err := parseAmount("epoch", args[1])
	if err != nil {
		return err
	}
	dir, err := domain.ParseDirection(args[2])
	if err != nil {
		return err
	}
	stake, err := parseAmount("stake", args[3])
	if err != nil {
		return err
	}
	paid := stake
	if len(args) == 5 {
		if paid, err = parseAmount("paid", args[4]); err != nil {
			return err
		}
	}
	if err := a.engine.PlaceBet(ctx, user, epoch, dir, stake, paid); err != nil {
		return err
	}
	slog.Info("bet placed", "user", user, "epoch", epoch, "direction", dir, "stake", stake)
	return a.report(ctx)
}

func claim(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: claim <addr> <epoch>...")
	}
	user, err := domain.ParseAddress(args[0])
	if err != nil {
		return err
	}
	epochs := make([]uint64, 0, len(args)-1)
	for _, s := range args[1:] {
		e, err := parseAmount("epoch", s)
		if err != nil {
			return err
		}
		epochs = append(epochs, e)
	}
	paid, err := a.engine.Claim(ctx, user, epochs)
	if err != nil {
		return err
	}
	slog.Info("claimed", "user", user, "epochs", epochs, "amount", paid)
	return nil
}

func acceptOwnership(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: accept-ownership <addr>")
	}
	return a.engine.AcceptOwnership(ctx, domain.Address(args[0]))
}

func deposit(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: deposit <addr> <amount>")
	}
	user, err := domain.ParseAddress(args[0])
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", args[1])
	if err != nil {
		return err
	}
	if err := a.vault.Deposit(ctx, user, amount); err != nil {
		return err
	}
	return balance(ctx, a, args[:1])
}

func fund(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: fund <amount>")
	}
	amount, err := parseAmount("amount", args[0])
	if err != nil {
		return err
	}
	if err := a.vault.Fund(ctx, amount); err != nil {
		return err
	}
	return balance(ctx, a, nil)
}

func balance(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		bal, err := a.vault.Balance(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("market balance: %s\n", a.notifier.Amount(bal))
		return nil
	}
	user, err := domain.ParseAddress(args[0])
	if err != nil {
		return err
	}
	bal, err := a.vault.WalletBalance(ctx, user)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", user, a.notifier.Amount(bal))
	return nil
}

func parseAmount(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, s, err)
	}
	return v, nil
}

// serve runs the keeper loop and, if configured, the HTTP API until ctx ends.
func serve(ctx context.Context, a *app) error {
	mc, err := a.cfg.MarketParams()
	if err != nil {
		return err
	}

	k := keeper.New(a.engine, a.slots, a.notifier, a.metrics, keeper.Config{
		Self:       mc.Self,
		Tick:       a.cfg.Tick(),
		StatusSpec: a.cfg.Keeper.StatusCron,
		Rounds:     a.cfg.Keeper.Rounds,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return k.Run(ctx)
	})

	if addr := a.cfg.HTTP.Addr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.New(a.engine, a.metrics.Registry()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http: listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
