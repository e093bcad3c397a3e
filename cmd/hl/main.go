package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"herdline/internal/app"
	"herdline/internal/db"
	"herdline/internal/domain"
	"herdline/internal/engine"
	"herdline/internal/migrate"
	"herdline/internal/repo"
	"herdline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hl",
	Short: "Herdline CLI",
	Long: `Herdline traces meat from farm to shop.
Animals are registered by farmers, slaughtered whole or split into carcass
parts, transferred to processing units, turned into product batches and
transferred on to shops. Receiving units can reject deliveries against a
configured rejection catalog; producers can appeal, and the rejecting unit
resolves each appeal exactly once. Every state change is audited.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HERDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("deployment", "default", "deployment name")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("deployment", rootCmd.PersistentFlags().Lookup("deployment"))
}

func registerCommands() {
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(animalCmd())
	rootCmd.AddCommand(transferCmd())
	rootCmd.AddCommand(receiveCmd())
	rootCmd.AddCommand(productCmd())
	rootCmd.AddCommand(rejectCmd())
	rootCmd.AddCommand(appealCmd())
	rootCmd.AddCommand(unitCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorCmd() *cobra.Command {
	actor := &cobra.Command{Use: "actor", Short: "Manage actors"}
	actor.AddCommand(actorRegisterCmd())
	actor.AddCommand(actorShowCmd())
	return actor
}

func actorRegisterCmd() *cobra.Command {
	var id, role, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RegisterActor(ctx, id, role, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "farmer, processing_unit, shop or admin")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current actor and affiliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetActor(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func animalCmd() *cobra.Command {
	animal := &cobra.Command{Use: "animal", Short: "Manage animals"}
	animal.AddCommand(animalRegisterCmd())
	animal.AddCommand(animalListCmd())
	animal.AddCommand(animalShowCmd())
	animal.AddCommand(animalSlaughterCmd())
	return animal
}

func animalRegisterCmd() *cobra.Command {
	var tag, species string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an animal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RegisterAnimal(ctx, viper.GetString("actor-id"), tag, species)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "ear tag")
	cmd.Flags().StringVar(&species, "species", "", "species")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func animalListCmd() *cobra.Command {
	var producer, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List animals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAnimals(ctx, repo.AnimalFilters{ProducerID: producer, Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Tag", "Species", "Status", "Transferred To", "Received"})
				for _, a := range items {
					transferred := ""
					if a.TransferredTo != nil {
						transferred = strconv.FormatInt(*a.TransferredTo, 10)
					}
					received := ""
					if a.ReceivedBy != nil {
						received = *a.ReceivedBy
					}
					tw.AppendRow(table.Row{a.ID, a.Tag, a.Species, a.Status, transferred, received})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&producer, "producer", "", "filter by producer")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func animalShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an animal and its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid animal id %q", args[0])
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetAnimal(ctx, id)
				if err != nil {
					return err
				}
				parts, err := r.ListPartsByAnimal(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"animal": a, "parts": parts})
			})
		},
	}
	return cmd
}

func animalSlaughterCmd() *cobra.Command {
	var carcassType string
	var parts []string
	cmd := &cobra.Command{
		Use:   "slaughter <id>",
		Short: "Record slaughter, whole or split into parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid animal id %q", args[0])
			}
			opts := engine.SlaughterOptions{
				ActorID:     viper.GetString("actor-id"),
				AnimalID:    id,
				CarcassType: carcassType,
			}
			for _, p := range parts {
				// --part type[:weight_kg]
				name, weightStr, hasWeight := strings.Cut(p, ":")
				part := engine.PartInput{PartType: name}
				if hasWeight {
					w, err := strconv.ParseFloat(weightStr, 64)
					if err != nil {
						return fmt.Errorf("invalid part weight in %q", p)
					}
					part.WeightKg = w
				}
				opts.Parts = append(opts.Parts, part)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Slaughter(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&carcassType, "carcass", "whole", "whole or split")
	cmd.Flags().StringArrayVar(&parts, "part", nil, "part as type[:weight_kg], repeatable")
	return cmd
}

func transferCmd() *cobra.Command {
	var unitID int64
	var animals, parts string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer animals and parts to a processing unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			animalIDs, err := parseIDList(animals)
			if err != nil {
				return err
			}
			partIDs, err := parseIDList(parts)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Transfer(ctx, engine.TransferOptions{
					ActorID:          viper.GetString("actor-id"),
					ProcessingUnitID: unitID,
					AnimalIDs:        animalIDs,
					PartIDs:          partIDs,
				})
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().Int64Var(&unitID, "unit", 0, "target processing unit id")
	cmd.Flags().StringVar(&animals, "animals", "", "comma-separated animal ids")
	cmd.Flags().StringVar(&parts, "parts", "", "comma-separated part ids")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func receiveCmd() *cobra.Command {
	var animals, parts, products string
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive transferred entities at the caller's unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			animalIDs, err := parseIDList(animals)
			if err != nil {
				return err
			}
			partIDs, err := parseIDList(parts)
			if err != nil {
				return err
			}
			productIDs, err := parseIDList(products)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID := viper.GetString("actor-id")
				if len(productIDs) > 0 {
					return e.ReceiveProducts(ctx, engine.ProductReceiveOptions{ActorID: actorID, ProductIDs: productIDs})
				}
				res, err := e.Receive(ctx, engine.ReceiveOptions{ActorID: actorID, AnimalIDs: animalIDs, PartIDs: partIDs})
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.AddCommand(receivePendingCmd())
	cmd.Flags().StringVar(&animals, "animals", "", "comma-separated animal ids")
	cmd.Flags().StringVar(&parts, "parts", "", "comma-separated part ids")
	cmd.Flags().StringVar(&products, "products", "", "comma-separated product ids")
	return cmd
}

func receivePendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List entities awaiting receipt at the caller's unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				aff, err := app.EnsureAffiliation(ctx, viper.GetString("actor-id"), e.Repo, e.Gate)
				if err != nil {
					return err
				}
				if aff.UnitKind == domain.UnitKindShop {
					products, err := e.Repo.ListPendingProducts(ctx, aff.UnitID)
					if err != nil {
						return err
					}
					return printJSONOrTable(products)
				}
				animals, err := e.Repo.ListPendingAnimals(ctx, aff.UnitID)
				if err != nil {
					return err
				}
				parts, err := e.Repo.ListPendingParts(ctx, aff.UnitID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"animals": animals, "parts": parts})
			})
		},
	}
	return cmd
}

func productCmd() *cobra.Command {
	product := &cobra.Command{Use: "product", Short: "Manage products"}
	product.AddCommand(productCreateCmd())
	product.AddCommand(productListCmd())
	product.AddCommand(productTransferCmd())
	return product
}

func productCreateCmd() *cobra.Command {
	var animalID, quantity int64
	var parts, batch, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product batch from received material",
		RunE: func(cmd *cobra.Command, args []string) error {
			partIDs, err := parseIDList(parts)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProduct(ctx, engine.ProductCreateOptions{
					ActorID:     viper.GetString("actor-id"),
					AnimalID:    animalID,
					PartIDs:     partIDs,
					BatchNumber: batch,
					Name:        name,
					Quantity:    quantity,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&animalID, "animal", 0, "source animal id (whole carcass)")
	cmd.Flags().StringVar(&parts, "parts", "", "comma-separated part ids")
	cmd.Flags().StringVar(&batch, "batch", "", "batch number")
	cmd.Flags().StringVar(&name, "name", "", "product name")
	cmd.Flags().Int64Var(&quantity, "quantity", 0, "unit count")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func productListCmd() *cobra.Command {
	var batch string
	var unitID int64
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProducts(ctx, repo.ProductFilters{
					BatchNumber:      batch,
					ProcessingUnitID: unitID,
					Limit:            limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Batch", "Name", "Qty", "Unit", "Shop", "Received"})
				for _, p := range items {
					shop := ""
					if p.TransferredTo != nil {
						shop = strconv.FormatInt(*p.TransferredTo, 10)
					}
					received := ""
					if p.ReceivedBy != nil {
						received = *p.ReceivedBy
					}
					tw.AppendRow(table.Row{p.ID, p.BatchNumber, p.Name, p.Quantity, p.ProcessingUnitID, shop, received})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&batch, "batch", "", "filter by batch number")
	cmd.Flags().Int64Var(&unitID, "unit", 0, "filter by processing unit")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func productTransferCmd() *cobra.Command {
	var shopID int64
	var items []string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer product quantities to a shop",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProductTransferOptions{
				ActorID: viper.GetString("actor-id"),
				ShopID:  shopID,
			}
			for _, raw := range items {
				// --item product_id[:quantity]
				idStr, qtyStr, hasQty := strings.Cut(raw, ":")
				id, err := strconv.ParseInt(idStr, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid product id in %q", raw)
				}
				item := engine.ProductTransferItem{ProductID: id}
				if hasQty {
					qty, err := strconv.ParseInt(qtyStr, 10, 64)
					if err != nil {
						return fmt.Errorf("invalid quantity in %q", raw)
					}
					item.Quantity = &qty
				}
				opts.Items = append(opts.Items, item)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.TransferProducts(ctx, opts)
			})
		},
	}
	cmd.Flags().Int64Var(&shopID, "shop", 0, "target shop id")
	cmd.Flags().StringArrayVar(&items, "item", nil, "product as id[:quantity], repeatable")
	_ = cmd.MarkFlagRequired("shop")
	return cmd
}

func rejectCmd() *cobra.Command {
	var kind, category, reason, notes string
	var entityID int64
	cmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject a delivered entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rr, err := e.Reject(ctx, engine.RejectOptions{
					ActorID:    viper.GetString("actor-id"),
					EntityKind: kind,
					EntityID:   entityID,
					Category:   category,
					Reason:     reason,
					Notes:      notes,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rr)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "animal, part or product")
	cmd.Flags().Int64Var(&entityID, "id", 0, "entity id")
	cmd.Flags().StringVar(&category, "category", "", "catalog category")
	cmd.Flags().StringVar(&reason, "reason", "", "catalog reason")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func appealCmd() *cobra.Command {
	appeal := &cobra.Command{Use: "appeal", Short: "Manage appeals"}
	appeal.AddCommand(appealOpenCmd())
	appeal.AddCommand(appealResolveCmd())
	appeal.AddCommand(appealListCmd())
	return appeal
}

func appealOpenCmd() *cobra.Command {
	var kind, notes string
	var entityID int64
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open an appeal against a rejection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.OpenAppeal(ctx, engine.AppealOptions{
					ActorID:    viper.GetString("actor-id"),
					EntityKind: kind,
					EntityID:   entityID,
					Notes:      notes,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "animal, part or product")
	cmd.Flags().Int64Var(&entityID, "id", 0, "entity id")
	cmd.Flags().StringVar(&notes, "notes", "", "why the rejection is contested")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func appealResolveCmd() *cobra.Command {
	var approve bool
	var notes string
	cmd := &cobra.Command{
		Use:   "resolve <appeal-id>",
		Short: "Resolve a pending appeal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid appeal id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ResolveAppeal(ctx, engine.ResolveAppealOptions{
					ActorID:  viper.GetString("actor-id"),
					AppealID: id,
					Approve:  approve,
					Notes:    notes,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the appeal (default deny)")
	cmd.Flags().StringVar(&notes, "notes", "", "resolution notes")
	return cmd
}

func appealListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List appeals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAppeals(ctx, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func unitCmd() *cobra.Command {
	unit := &cobra.Command{Use: "unit", Short: "Manage units and memberships"}
	unit.AddCommand(unitCreateCmd())
	unit.AddCommand(unitMembersCmd())
	unit.AddCommand(unitInviteCmd())
	unit.AddCommand(unitRespondCmd())
	unit.AddCommand(unitJoinCmd())
	unit.AddCommand(unitReviewCmd())
	unit.AddCommand(unitSuspendCmd())
	unit.AddCommand(unitRemoveCmd())
	unit.AddCommand(unitLeaveCmd())
	return unit
}

func unitCreateCmd() *cobra.Command {
	var kind, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a processing unit or shop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID := viper.GetString("actor-id")
				if kind == domain.UnitKindShop {
					s, err := e.CreateShop(ctx, actorID, name)
					if err != nil {
						return err
					}
					return printJSONOrTable(s)
				}
				u, err := e.CreateProcessingUnit(ctx, actorID, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", domain.UnitKindProcessing, "processing_unit or shop")
	cmd.Flags().StringVar(&name, "name", "", "unit name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func unitMembersCmd() *cobra.Command {
	var kind string
	var unitID int64
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List unit members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMemberships(ctx, kind, unitID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", domain.UnitKindProcessing, "processing_unit or shop")
	cmd.Flags().Int64Var(&unitID, "unit", 0, "unit id")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func unitInviteCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Invite an actor to the caller's unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.InviteMember(ctx, viper.GetString("actor-id"), target, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id to invite")
	cmd.Flags().StringVar(&role, "role", "worker", "membership role")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func unitRespondCmd() *cobra.Command {
	var accept bool
	cmd := &cobra.Command{
		Use:   "respond <membership-id>",
		Short: "Accept or decline an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid membership id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.RespondInvitation(ctx, viper.GetString("actor-id"), id, accept)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().BoolVar(&accept, "accept", false, "accept the invitation (default decline)")
	return cmd
}

func unitJoinCmd() *cobra.Command {
	var kind string
	var unitID int64
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Request to join a unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.RequestJoin(ctx, viper.GetString("actor-id"), kind, unitID)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", domain.UnitKindProcessing, "processing_unit or shop")
	cmd.Flags().Int64Var(&unitID, "unit", 0, "unit id")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func unitReviewCmd() *cobra.Command {
	var approve bool
	cmd := &cobra.Command{
		Use:   "review <membership-id>",
		Short: "Approve or deny a join request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid membership id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ReviewJoinRequest(ctx, viper.GetString("actor-id"), id, approve)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the request (default deny)")
	return cmd
}

func unitSuspendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suspend <membership-id>",
		Short: "Suspend a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid membership id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SuspendMember(ctx, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func unitRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <membership-id>",
		Short: "Remove a member from the unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid membership id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.RemoveMember(ctx, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func unitLeaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leave",
		Short: "Leave the caller's unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.LeaveUnit(ctx, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	apikey.AddCommand(apikeyCreateCmd())
	apikey.AddCommand(apikeyListCmd())
	apikey.AddCommand(apikeyDeleteCmd())
	return apikey
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := uuid.NewString() + uuid.NewString()
				k := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": k.ID, "key": raw})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{Use: "notification", Short: "Manage notifications"}
	n.AddCommand(notificationListCmd())
	n.AddCommand(notificationReadCmd())
	return n
}

func notificationListCmd() *cobra.Command {
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListNotifications(ctx, viper.GetString("actor-id"), unread, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func notificationReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid notification id %q", args[0])
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.MarkNotificationRead(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Audit log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var action, entityKind string
	var entityID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				records, err := r.ListAuditRecords(ctx, repo.AuditFilters{
					Action:     action,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Action", "By", "Entity", "ID"})
				for _, rec := range records {
					entity := ""
					if rec.EntityID != nil {
						entity = strconv.FormatInt(*rec.EntityID, 10)
					}
					tw.AppendRow(table.Row{rec.TS, rec.Action, rec.PerformedBy, rec.EntityKind, entity})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of records")
	cmd.Flags().StringVar(&action, "action", "", "action filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().Int64Var(&entityID, "entity-id", 0, "entity id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage deployment config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active deployment config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ResolveConfig(ctx, viper.GetString("deployment"), r)
				if err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a deployment config from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ImportConfig(ctx, viper.GetString("deployment"), file, r)
				if err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), viper.GetString("deployment"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("HERDLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("HERDLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Herdline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		cfg, err := app.ResolveConfig(ctx, viper.GetString("deployment"), r)
		if err != nil {
			return err
		}
		return fn(ctx, engine.New(r.DB, cfg))
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
