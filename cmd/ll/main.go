package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"ledgerline/internal/app"
	"ledgerline/internal/config"
	"ledgerline/internal/db"
	"ledgerline/internal/domain"
	"ledgerline/internal/engine"
	"ledgerline/internal/migrate"
	"ledgerline/internal/repo"
	"ledgerline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ll",
	Short: "Ledgerline CLI",
	Long: `Ledgerline tracks client work from task to paid invoice.
- Workspace: the .ledgerline directory holding the database; ledgerline.yml holds server and billing settings.
- Organization: the billing boundary. Members carry a role (owner, admin, manager, member) that gates what they may do.
- Clients and projects: projects belong to a client and are priced fixed or hourly; hourly rates resolve project -> client -> org default.
- Tasks: work items with dependencies. A task with unfinished dependencies is blocked and unblocks itself when they finish.
- Time: start/stop timers or log entries directly; billable entries feed hourly invoices.
- Invoices: generated per project, numbered INV-001 onward, moving draft -> sent -> paid (or cancelled).
- Event log: diary of changes, view with 'll log tail'.`,
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
	_ = gotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
	viper.SetEnvPrefix("LEDGERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("org", "", "organization id (defaults to your only membership)")
	rootCmd.PersistentFlags().String("as", "", "acting user email")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(timerCmd())
	rootCmd.AddCommand(timeCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(labelCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default ledgerline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = c.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgListCmd())
	org.AddCommand(orgShowCmd())
	org.AddCommand(orgUpdateCmd())
	org.AddCommand(orgUseCmd())
	return org
}

func orgCreateCmd() *cobra.Command {
	var name, currency string
	var rate, tax float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an organization; the acting user becomes its owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				opts := engine.OrgCreateOptions{Name: name, Currency: currency, CreatorID: actor.ID}
				if cmd.Flags().Changed("default-hourly-rate") {
					opts.DefaultHourlyRate = &rate
				}
				if cmd.Flags().Changed("tax-rate") {
					opts.TaxRate = &tax
				}
				org, err := e.CreateOrganization(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(org)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "organization name")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code")
	cmd.Flags().Float64Var(&rate, "default-hourly-rate", 0, "default hourly rate")
	cmd.Flags().Float64Var(&tax, "tax-rate", 0, "tax rate percent")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func orgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				orgs, err := e.Repo.ListOrganizationsForUser(ctx, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(orgs)
			})
		},
	}
}

func orgShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				org, err := e.Repo.GetOrganization(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(org)
			})
		},
	}
}

func orgUpdateCmd() *cobra.Command {
	var name, currency string
	var rate, tax float64
	var clearRate bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update organization settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				opts := engine.OrgUpdateOptions{ActorID: actor.ID, ClearDefaultRate: clearRate}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("currency") {
					opts.Currency = &currency
				}
				if cmd.Flags().Changed("default-hourly-rate") {
					opts.DefaultHourlyRate = &rate
				}
				if cmd.Flags().Changed("tax-rate") {
					opts.TaxRate = &tax
				}
				org, err := e.UpdateOrganization(ctx, orgID, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(org)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "organization name")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code")
	cmd.Flags().Float64Var(&rate, "default-hourly-rate", 0, "default hourly rate")
	cmd.Flags().BoolVar(&clearRate, "clear-default-hourly-rate", false, "clear the default hourly rate")
	cmd.Flags().Float64Var(&tax, "tax-rate", 0, "tax rate percent")
	return cmd
}

func orgUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set the default organization for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID := strings.TrimSpace(args[0])
			if orgID == "" {
				return fmt.Errorf("organization id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "LEDGERLINE_ORG", orgID); err != nil {
				return err
			}
			fmt.Printf("Set LEDGERLINE_ORG=%s in %s/.env\n", orgID, workspace)
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	var name, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, name, email)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&email, "email", "", "email")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")
	user.AddCommand(create)
	user.AddCommand(&cobra.Command{
		Use:   "whoami",
		Short: "Show the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	})
	return user
}

func memberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage organization members"}
	member.AddCommand(memberAddCmd())
	member.AddCommand(memberListCmd())
	member.AddCommand(memberSetRoleCmd())
	member.AddCommand(memberRemoveCmd())
	return member
}

func memberAddCmd() *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				m, err := e.AddMember(ctx, orgID, engine.MemberAddOptions{UserID: userID, Role: role, ActorID: actor.ID})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", "member", "role (owner, admin, manager, member)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				memberships, err := e.Repo.ListMemberships(ctx, orgID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(memberships)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Name", "Email", "Role", "Since"})
				for _, m := range memberships {
					u, err := e.Repo.GetUser(ctx, m.UserID)
					if err != nil {
						return err
					}
					tw.AppendRow(table.Row{m.UserID, u.Name, u.Email, m.Role, m.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func memberSetRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "set-role <user-id>",
		Short: "Change a member's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				m, err := e.UpdateMemberRole(ctx, orgID, args[0], role, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "new role")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				return e.RemoveMember(ctx, orgID, args[0], actor.ID)
			})
		},
	}
}

func clientCmd() *cobra.Command {
	client := &cobra.Command{Use: "client", Short: "Manage clients"}
	var name, email, notes string
	var rate float64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				opts := engine.ClientCreateOptions{Name: name, Email: email, Notes: notes, ActorID: actor.ID}
				if cmd.Flags().Changed("hourly-rate") {
					opts.HourlyRate = &rate
				}
				c, err := e.CreateClient(ctx, orgID, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "client name")
	create.Flags().StringVar(&email, "email", "", "contact email")
	create.Flags().Float64Var(&rate, "hourly-rate", 0, "client hourly rate")
	create.Flags().StringVar(&notes, "notes", "", "notes")
	_ = create.MarkFlagRequired("name")
	client.AddCommand(create)
	client.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				clients, err := e.Repo.ListClients(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(clients)
			})
		},
	})
	return client
}

func projectCmd() *cobra.Command {
	project := &cobra.Command{Use: "project", Short: "Manage projects"}
	var clientID, name, description, pricing string
	var fixedPrice, hourlyRate float64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				opts := engine.ProjectCreateOptions{
					ClientID:    clientID,
					Name:        name,
					Description: description,
					PricingType: pricing,
					ActorID:     actor.ID,
				}
				if cmd.Flags().Changed("fixed-price") {
					opts.FixedPrice = &fixedPrice
				}
				if cmd.Flags().Changed("hourly-rate") {
					opts.HourlyRate = &hourlyRate
				}
				p, err := e.CreateProject(ctx, orgID, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	create.Flags().StringVar(&clientID, "client", "", "client id")
	create.Flags().StringVar(&name, "name", "", "project name")
	create.Flags().StringVar(&description, "description", "", "description")
	create.Flags().StringVar(&pricing, "pricing", "hourly", "pricing type (fixed, hourly)")
	create.Flags().Float64Var(&fixedPrice, "fixed-price", 0, "fixed price")
	create.Flags().Float64Var(&hourlyRate, "hourly-rate", 0, "project hourly rate")
	_ = create.MarkFlagRequired("client")
	_ = create.MarkFlagRequired("name")
	project.AddCommand(create)

	var filterClient, filterStatus string
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				projects, err := e.Repo.ListProjects(ctx, orgID, repo.ProjectFilters{ClientID: filterClient, Status: filterStatus})
				if err != nil {
					return err
				}
				return printJSONOrTable(projects)
			})
		},
	}
	list.Flags().StringVar(&filterClient, "client", "", "client filter")
	list.Flags().StringVar(&filterStatus, "status", "", "status filter")
	project.AddCommand(list)
	return project
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks flow todo -> in_progress -> done. A task whose dependencies are unfinished is held at blocked and returns to todo when they are done.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDependCmd())
	task.AddCommand(taskCommentCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var projectID, title, description, assignee, due string
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				opts := engine.TaskCreateOptions{
					ProjectID:   projectID,
					Title:       title,
					Description: description,
					ActorID:     actor.ID,
				}
				if assignee != "" {
					opts.AssigneeID = &assignee
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				if due != "" {
					opts.DueDate = &due
				}
				t, err := e.CreateTask(ctx, orgID, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (lower is higher)")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				tasks, err := e.Repo.ListTasks(ctx, orgID, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Due"})
				for _, t := range tasks {
					assignee := ""
					if t.AssigneeID != nil {
						assignee = *t.AssigneeID
					}
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, assignee, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				t, err := e.Repo.GetTask(ctx, orgID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, description, status, assignee, due string
	var priority int
	var clearAssignee bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				opts := engine.TaskUpdateOptions{ActorID: actor.ID, ClearAssignee: clearAssignee}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("assignee") {
					opts.AssigneeID = &assignee
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				if cmd.Flags().Changed("due") {
					opts.DueDate = &due
				}
				t, err := e.UpdateTask(ctx, orgID, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	cmd.Flags().BoolVar(&clearAssignee, "clear-assignee", false, "clear assignee")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	return cmd
}

func taskDependCmd() *cobra.Command {
	dep := &cobra.Command{Use: "depend", Short: "Manage task dependencies"}
	var on string
	add := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Add a dependency; the task blocks until it is done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				d, err := e.AddDependency(ctx, orgID, args[0], on, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	add.Flags().StringVar(&on, "on", "", "task this one depends on")
	_ = add.MarkFlagRequired("on")
	dep.AddCommand(add)
	dep.AddCommand(&cobra.Command{
		Use:   "list <task-id>",
		Short: "List dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				if _, err := e.Repo.GetTask(ctx, orgID, args[0]); err != nil {
					return err
				}
				deps, err := e.Repo.ListDependencies(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(deps)
			})
		},
	})
	remove := &cobra.Command{
		Use:   "remove <task-id> <dependency-id>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				return e.RemoveDependency(ctx, orgID, args[0], args[1], actor.ID)
			})
		},
	}
	dep.AddCommand(remove)
	return dep
}

func taskCommentCmd() *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "comment <task-id>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				c, err := e.AddComment(ctx, orgID, args[0], actor.ID, body)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "comment text")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func timerCmd() *cobra.Command {
	timer := &cobra.Command{Use: "timer", Short: "Start and stop timers"}
	var description string
	var nonBillable bool
	start := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start a timer on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				entry, err := e.StartTimer(ctx, orgID, engine.TimerStartOptions{
					TaskID:      args[0],
					UserID:      actor.ID,
					Description: description,
					Billable:    !nonBillable,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	start.Flags().StringVar(&description, "description", "", "what you are working on")
	start.Flags().BoolVar(&nonBillable, "non-billable", false, "mark time as non-billable")
	timer.AddCommand(start)
	timer.AddCommand(&cobra.Command{
		Use:   "stop <task-id>",
		Short: "Stop your running timer on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				entry, err := e.StopTimer(ctx, orgID, args[0], actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	})
	return timer
}

func timeCmd() *cobra.Command {
	tc := &cobra.Command{Use: "time", Short: "Log and list time entries"}
	var taskID, description, started, ended string
	var nonBillable bool
	logTime := &cobra.Command{
		Use:   "log",
		Short: "Log a completed time entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				entry, err := e.LogTime(ctx, orgID, engine.TimeLogOptions{
					TaskID:      taskID,
					UserID:      actor.ID,
					Description: description,
					StartedAt:   started,
					EndedAt:     ended,
					Billable:    !nonBillable,
					ActorID:     actor.ID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	logTime.Flags().StringVar(&taskID, "task", "", "task id")
	logTime.Flags().StringVar(&description, "description", "", "description")
	logTime.Flags().StringVar(&started, "from", "", "start time (RFC3339)")
	logTime.Flags().StringVar(&ended, "to", "", "end time (RFC3339)")
	logTime.Flags().BoolVar(&nonBillable, "non-billable", false, "mark time as non-billable")
	_ = logTime.MarkFlagRequired("task")
	_ = logTime.MarkFlagRequired("from")
	_ = logTime.MarkFlagRequired("to")
	tc.AddCommand(logTime)

	var f repo.TimeEntryFilters
	var billableOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List time entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if billableOnly {
				t := true
				f.Billable = &t
			}
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				entries, err := e.Repo.ListTimeEntries(ctx, orgID, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	list.Flags().StringVar(&f.TaskID, "task", "", "task filter")
	list.Flags().StringVar(&f.UserID, "user", "", "user filter")
	list.Flags().BoolVar(&billableOnly, "billable", false, "billable entries only")
	list.Flags().BoolVar(&f.Open, "open", false, "running timers only")
	list.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	tc.AddCommand(list)
	return tc
}

func invoiceCmd() *cobra.Command {
	invoice := &cobra.Command{
		Use:   "invoice",
		Short: "Generate and manage invoices",
		Long:  "Invoices bill a project: fixed-price projects as one line, hourly projects from billable time entries. They move draft -> sent -> paid, or get cancelled.",
	}
	invoice.AddCommand(invoiceGenerateCmd())
	invoice.AddCommand(invoiceListCmd())
	invoice.AddCommand(invoiceShowCmd())
	invoice.AddCommand(invoiceStatusCmd())
	invoice.AddCommand(invoicePayCmd())
	return invoice
}

func invoiceGenerateCmd() *cobra.Command {
	var projectID, notes, due string
	var entryIDs []string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an invoice for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				opts := engine.InvoiceGenerateOptions{
					ProjectID:    projectID,
					TimeEntryIDs: entryIDs,
					Notes:        notes,
					ActorID:      actor.ID,
				}
				if due != "" {
					opts.DueAt = &due
				}
				inv, err := e.GenerateInvoice(ctx, orgID, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringArrayVar(&entryIDs, "entry", []string{}, "time entry id to bill (repeatable; hourly projects)")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&notes, "notes", "", "invoice notes")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func invoiceListCmd() *cobra.Command {
	var f repo.InvoiceFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				invoices, err := e.Repo.ListInvoices(ctx, orgID, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(invoices)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"No", "Status", "Client", "Project", "Total", "Currency"})
				for _, inv := range invoices {
					tw.AppendRow(table.Row{inv.InvoiceNo, inv.Status, inv.ClientID, inv.ProjectID, fmt.Sprintf("%.2f", inv.Total), inv.Currency})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func invoiceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an invoice with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				inv, err := e.GetInvoice(ctx, orgID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
}

func invoiceStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Transition an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				inv, err := e.SetInvoiceStatus(ctx, orgID, args[0], status, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (sent, paid, cancelled)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func invoicePayCmd() *cobra.Command {
	var amount float64
	var method, reference, received string
	cmd := &cobra.Command{
		Use:   "pay <id>",
		Short: "Record a payment against an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, actor domain.User) error {
				p, err := e.RecordPayment(ctx, orgID, args[0], engine.PaymentRecordOptions{
					Amount:     amount,
					Method:     method,
					Reference:  reference,
					ReceivedAt: received,
					ActorID:    actor.ID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "payment amount")
	cmd.Flags().StringVar(&method, "method", "", "payment method")
	cmd.Flags().StringVar(&reference, "reference", "", "external reference")
	cmd.Flags().StringVar(&received, "received", "", "received at (RFC3339, defaults to now)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func labelCmd() *cobra.Command {
	label := &cobra.Command{Use: "label", Short: "Manage labels"}
	var name, color string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a label",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				l, err := e.CreateLabel(ctx, orgID, name, color)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label name")
	create.Flags().StringVar(&color, "color", "", "hex color")
	_ = create.MarkFlagRequired("name")
	label.AddCommand(create)
	label.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				labels, err := e.Repo.ListLabels(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(labels)
			})
		},
	})
	var labelID string
	attach := &cobra.Command{
		Use:   "attach <task-id>",
		Short: "Attach a label to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				return e.AttachLabel(ctx, orgID, args[0], labelID)
			})
		},
	}
	attach.Flags().StringVar(&labelID, "label", "", "label id")
	_ = attach.MarkFlagRequired("label")
	label.AddCommand(attach)
	return label
}

func apikeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting user; the key is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				raw := make([]byte, 32)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				key := "llk_" + hex.EncodeToString(raw)
				tx, err := e.Repo.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				record := domain.APIKey{
					ID:        uuid.NewString(),
					UserID:    actor.ID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(key),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, tx, record); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": record.ID, "key": key})
				}
				fmt.Printf("API key %s created. Store it now; it is not shown again:\n%s\n", record.ID, key)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	apikey.AddCommand(create)
	apikey.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the acting user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				keys, err := e.Repo.ListAPIKeys(ctx, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	})
	apikey.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return apikey
}

func tokenCmd() *cobra.Command {
	token := &cobra.Command{Use: "token", Short: "Issue API tokens"}
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed JWT for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
				return fmt.Errorf("auth.jwt_secret is not set in %s", config.Path(viper.GetString("workspace")))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				now := time.Now().UTC()
				claims := jwt.RegisteredClaims{
					Subject:   actor.ID,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				}
				signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.JWTSecret))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": signed})
				}
				fmt.Println(signed)
				return nil
			})
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	token.AddCommand(issue)
	return token
}

func logCmd() *cobra.Command {
	lc := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	var n int
	var evtType, entity, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrg(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string, _ domain.User) error {
				events, err := e.Repo.LatestEvents(ctx, n, orgID, evtType, entity, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entity, "entity", "", "entity filter")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	lc.AddCommand(tail)
	return lc
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
				return fmt.Errorf("auth.jwt_secret is required in %s", config.Path(workspace))
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			logger, err := newLogger(cfg.DevMode)
			if err != nil {
				return err
			}
			defer logger.Sync()
			e := engine.New(conn, cfg)
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:         cfg.Auth.JWTSecret,
					AllowLegacyHeader: cfg.Auth.AllowLegacyHeader,
				},
				Webhooks: cfg.Webhooks,
				DevMode:  cfg.DevMode,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving Ledgerline API",
				zap.String("addr", cfg.Server.Addr),
				zap.String("base_path", cfg.Server.BasePath))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withOrg(ctx context.Context, fn func(context.Context, engine.Engine, string, domain.User) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		actor, err := actingUser(ctx, e)
		if err != nil {
			return err
		}
		orgID, err := app.ResolveOrg(ctx, e.Repo, viper.GetString("org"), actor.ID)
		if err != nil {
			return err
		}
		return fn(ctx, e, orgID, actor)
	})
}

// actingUser resolves the CLI caller from --as (or LEDGERLINE_AS), creating
// the local user on first use.
func actingUser(ctx context.Context, e engine.Engine) (domain.User, error) {
	email := strings.TrimSpace(viper.GetString("as"))
	if email == "" {
		email = "local@ledgerline.dev"
	}
	name := strings.SplitN(email, "@", 2)[0]
	return app.EnsureUser(ctx, e, name, email)
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
