// Package main is the marketplace operator CLI. Commands run against the
// configured ledger; keys are solana-keygen JSON keypair files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"solana-nft-market/internal/bootstrap"
	"solana-nft-market/internal/config"
	"solana-nft-market/internal/logger"
	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/processor"
	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/reporting"
	"solana-nft-market/internal/solana"
)

var cfg *config.Config

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		zap.L().Fatal("load config", zap.Error(err))
	}

	keypairFlag := func(name, usage string) cli.Flag {
		return &cli.StringFlag{Name: name, Usage: usage + " keypair file", Required: true}
	}
	marketplaceFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "marketplace", Value: cfg.MarketplaceName, EnvVars: []string{"MARKETPLACE_NAME"}, Usage: "marketplace name"}
	}

	app := &cli.App{
		Name:  "market",
		Usage: "operate the NFT marketplace ledger",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "memory", Value: cfg.UseMemory, EnvVars: []string{"USE_MEMORY"}, Usage: "use in-memory stores (state is lost on exit)"},
		},
		Before: func(c *cli.Context) error {
			cfg.UseMemory = c.Bool("memory")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply embedded PostgreSQL and ClickHouse migrations",
				Action: migrate,
			},
			{
				Name:   "init-marketplace",
				Usage:  "create a marketplace and its treasury",
				Action: initMarketplace,
				Flags: []cli.Flag{
					keypairFlag("admin", "marketplace admin"),
					marketplaceFlag(),
					&cli.UintFlag{Name: "fee", Usage: "fee in basis points (recorded, not charged)"},
				},
			},
			{
				Name:   "whitelist",
				Usage:  "allow a collection on a marketplace",
				Action: whitelist,
				Flags: []cli.Flag{
					keypairFlag("admin", "marketplace admin"),
					marketplaceFlag(),
					&cli.StringFlag{Name: "collection", Usage: "collection mint address", Required: true},
				},
			},
			{
				Name:   "create-mint",
				Usage:  "create a token mint and mint supply to an owner",
				Action: createMint,
				Flags: []cli.Flag{
					keypairFlag("payer", "fee payer and mint authority"),
					&cli.StringFlag{Name: "owner", Usage: "receiving wallet, defaults to the payer"},
					&cli.Uint64Flag{Name: "supply", Value: 1, Usage: "units to mint"},
					&cli.StringFlag{Name: "save-keypair", Usage: "write the new mint keypair to this file"},
				},
			},
			{
				Name:   "list",
				Usage:  "escrow an NFT in a vault and open a listing",
				Action: list,
				Flags: []cli.Flag{
					keypairFlag("maker", "seller"),
					marketplaceFlag(),
					&cli.StringFlag{Name: "collection", Required: true},
					&cli.StringFlag{Name: "mint", Required: true},
					&cli.StringFlag{Name: "maker-ata", Usage: "token account holding the NFT, defaults to the associated account"},
					&cli.Uint64Flag{Name: "price", Usage: "price in lamports", Required: true},
					&cli.Int64Flag{Name: "expiry", Usage: "unix seconds, 0 never expires"},
				},
			},
			{
				Name:   "bid",
				Usage:  "buy a listed NFT at its price",
				Action: bid,
				Flags: []cli.Flag{
					keypairFlag("taker", "buyer"),
					marketplaceFlag(),
					&cli.StringFlag{Name: "collection", Required: true},
					&cli.StringFlag{Name: "mint", Required: true},
					&cli.Uint64Flag{Name: "price", Usage: "lamports to sign for, defaults to the current listing price"},
					&cli.DurationFlag{Name: "expires-in", Value: 10 * time.Minute, Usage: "how long the signed bid stays valid"},
				},
			},
			{
				Name:      "airdrop",
				Usage:     "credit lamports to an address (development ledgers only)",
				ArgsUsage: "<address> <lamports>",
				Action:    airdrop,
			},
			{
				Name:      "show-listing",
				Usage:     "print a listing and its state",
				ArgsUsage: "<listing address>",
				Action:    showListing,
			},
			{
				Name:   "derive",
				Usage:  "print the addresses a bid on a listing touches",
				Action: derive,
				Flags: []cli.Flag{
					marketplaceFlag(),
					&cli.StringFlag{Name: "collection", Required: true},
					&cli.StringFlag{Name: "mint", Required: true},
					&cli.StringFlag{Name: "taker", Usage: "taker wallet, adds the taker token account"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().Fatal("command failed", zap.Error(err))
	}
}

// withProcessor opens the stores, runs fn and closes them.
func withProcessor(c *cli.Context, fn func(ctx context.Context, proc *processor.Processor) error) error {
	log := logger.Must(logger.Options{Path: cfg.LogFile, Debug: cfg.Debug})
	defer log.Sync()

	stores, err := bootstrap.OpenStores(c.Context, cfg, false, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	proc, err := bootstrap.NewProcessor(cfg, stores, log)
	if err != nil {
		return err
	}
	return fn(c.Context, proc)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func keyArg(c *cli.Context, name string) (solana.PublicKey, error) {
	key, err := solana.ParsePublicKey(c.String(name))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %w", name, err)
	}
	return key, nil
}

func migrate(c *cli.Context) error {
	log := logger.Must(logger.Options{Path: cfg.LogFile, Debug: cfg.Debug})
	defer log.Sync()

	stores, err := bootstrap.OpenStores(c.Context, cfg, true, log)
	if err != nil {
		return err
	}
	stores.Close()
	log.Info("migrations applied")
	return nil
}

func initMarketplace(c *cli.Context) error {
	admin, err := solana.LoadKeypair(c.String("admin"))
	if err != nil {
		return err
	}
	fee := c.Uint("fee")
	if fee > 10_000 {
		return fmt.Errorf("--fee %d exceeds 10000 basis points", fee)
	}
	return withProcessor(c, func(ctx context.Context, proc *processor.Processor) error {
		mp, err := proc.InitializeMarketplace(ctx, admin.Signer(), c.String("marketplace"), uint16(fee))
		if err != nil {
			return err
		}
		treasury, _, err := proc.Program().Seeds().Treasury(mp)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"marketplace": mp.String(), "treasury": treasury.String()})
	})
}

func whitelist(c *cli.Context) error {
	admin, err := solana.LoadKeypair(c.String("admin"))
	if err != nil {
		return err
	}
	collection, err := keyArg(c, "collection")
	if err != nil {
		return err
	}
	return withProcessor(c, func(ctx context.Context, proc *processor.Processor) error {
		mp, _, err := proc.Program().Seeds().Marketplace(c.String("marketplace"))
		if err != nil {
			return err
		}
		wl, err := proc.WhitelistCollection(ctx, admin.Signer(), mp, collection)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"whitelist": wl.String()})
	})
}

func createMint(c *cli.Context) error {
	payer, err := solana.LoadKeypair(c.String("payer"))
	if err != nil {
		return err
	}
	owner := payer.PublicKey()
	if c.String("owner") != "" {
		if owner, err = keyArg(c, "owner"); err != nil {
			return err
		}
	}
	mint, err := solana.GenerateKeypair()
	if err != nil {
		return err
	}
	if path := c.String("save-keypair"); path != "" {
		if err := mint.Save(path); err != nil {
			return fmt.Errorf("save mint keypair: %w", err)
		}
	}
	return withProcessor(c, func(ctx context.Context, proc *processor.Processor) error {
		ata, err := proc.MintAsset(ctx, payer.Signer(), mint.Signer(), payer.Signer(), owner, c.Uint64("supply"))
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"mint": mint.PublicKey().String(), "token_account": ata.String()})
	})
}

func list(c *cli.Context) error {
	maker, err := solana.LoadKeypair(c.String("maker"))
	if err != nil {
		return err
	}
	collection, err := keyArg(c, "collection")
	if err != nil {
		return err
	}
	mint, err := keyArg(c, "mint")
	if err != nil {
		return err
	}
	return withProcessor(c, func(ctx context.Context, proc *processor.Processor) error {
		mp, _, err := proc.Program().Seeds().Marketplace(c.String("marketplace"))
		if err != nil {
			return err
		}
		params := marketplace.ListParams{
			Marketplace:    mp,
			CollectionMint: collection,
			Mint:           mint,
			Price:          c.Uint64("price"),
			Expiry:         c.Int64("expiry"),
		}
		if c.String("maker-ata") != "" {
			if params.MakerATA, err = keyArg(c, "maker-ata"); err != nil {
				return err
			}
		} else {
			if params.MakerATA, _, err = programs.AssociatedTokenAddress(maker.PublicKey(), mint); err != nil {
				return err
			}
		}

		res, err := proc.List(ctx, maker.Signer(), params)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"listing":   res.Listing.String(),
			"vault":     res.Vault.String(),
			"whitelist": res.Whitelist.String(),
			"price_sol": reporting.FormatSOL(params.Price),
		})
	})
}

func bid(c *cli.Context) error {
	taker, err := solana.LoadKeypair(c.String("taker"))
	if err != nil {
		return err
	}
	collection, err := keyArg(c, "collection")
	if err != nil {
		return err
	}
	mint, err := keyArg(c, "mint")
	if err != nil {
		return err
	}
	return withProcessor(c, func(ctx context.Context, proc *processor.Processor) error {
		accts, err := proc.Program().Seeds().DeriveBidAccounts(c.String("marketplace"), collection, mint, solana.PublicKey{}, taker.PublicKey())
		if err != nil {
			return err
		}
		price := c.Uint64("price")
		if price == 0 {
			view, err := proc.GetListing(ctx, accts.Listing)
			if err != nil {
				return err
			}
			if view.Listing == nil {
				return fmt.Errorf("listing %s is %s", accts.Listing, view.State)
			}
			price = view.Listing.Price
		}
		expiresAt := time.Now().Add(c.Duration("expires-in")).Unix()
		settlement, err := proc.SubmitBid(ctx, processor.BidRequest{
			MarketplaceName: c.String("marketplace"),
			CollectionMint:  collection,
			Mint:            mint,
			Taker:           taker.PublicKey(),
			Price:           price,
			ExpiresAt:       expiresAt,
			Signature:       taker.Sign(processor.BidMessage(accts.Listing, taker.PublicKey(), price, expiresAt)),
		})
		if err != nil {
			if me := marketplace.Classify(err); me != nil {
				return fmt.Errorf("bid rejected: %s (%d) %s [%s]", me.Name, me.Code, me.Kind, me.Check)
			}
			return err
		}
		return printJSON(map[string]interface{}{
			"settlement_id": settlement.SettlementID,
			"listing":       settlement.Listing,
			"maker":         settlement.Maker,
			"price_sol":     reporting.FormatSOL(settlement.Price),
			"reclaimed_sol": reporting.FormatSOL(settlement.Reclaimed()),
			"slot":          settlement.Slot,
		})
	})
}

func airdrop(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: airdrop <address> <lamports>")
	}
	address, err := solana.ParsePublicKey(c.Args().Get(0))
	if err != nil {
		return err
	}
	var lamports uint64
	if _, err := fmt.Sscan(c.Args().Get(1), &lamports); err != nil || lamports == 0 {
		return fmt.Errorf("lamports must be a positive integer")
	}
	return withProcessor(c, func(ctx context.Context, proc *processor.Processor) error {
		balance, err := proc.Airdrop(ctx, address, lamports)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"address": address.String(), "balance_sol": reporting.FormatSOL(balance)})
	})
}

func showListing(c *cli.Context) error {
	address, err := solana.ParsePublicKey(c.Args().First())
	if err != nil {
		return err
	}
	return withProcessor(c, func(ctx context.Context, proc *processor.Processor) error {
		view, err := proc.GetListing(ctx, address)
		if err != nil {
			return err
		}
		out := map[string]interface{}{
			"address": view.Address.String(),
			"state":   view.State.String(),
			"slot":    view.Clock.Slot,
		}
		if l := view.Listing; l != nil {
			out["maker"] = l.Maker.String()
			out["mint"] = l.Mint.String()
			out["price_sol"] = reporting.FormatSOL(l.Price)
			out["expiry"] = l.Expiry
		}
		return printJSON(out)
	})
}

func derive(c *cli.Context) error {
	collection, err := keyArg(c, "collection")
	if err != nil {
		return err
	}
	mint, err := keyArg(c, "mint")
	if err != nil {
		return err
	}
	var taker solana.PublicKey
	if c.String("taker") != "" {
		if taker, err = keyArg(c, "taker"); err != nil {
			return err
		}
	}
	programID, err := solana.ParsePublicKey(cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("PROGRAM_ID: %w", err)
	}
	accts, err := marketplace.NewDeriver(programID).DeriveBidAccounts(c.String("marketplace"), collection, mint, solana.PublicKey{}, taker)
	if err != nil {
		return err
	}
	out := map[string]string{
		"marketplace": accts.Marketplace.String(),
		"treasury":    accts.Treasury.String(),
		"whitelist":   accts.Whitelist.String(),
		"listing":     accts.Listing.String(),
		"vault":       accts.Vault.String(),
	}
	if !taker.IsZero() {
		out["taker_ata"] = accts.TakerATA.String()
	}
	return printJSON(out)
}
