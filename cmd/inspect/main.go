// Command inspect prints the relay state stored in a Badger directory:
// users with their online counter and their latest notifications.
// With -seed it first loads users and conversations from a JSON file,
// which is how a Badger deployment gets the data the CRUD layer owns.
package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

type seedFile struct {
	Users []struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	} `json:"users"`
	Conversations []struct {
		ID      int64   `json:"id"`
		Title   string  `json:"title"`
		Members []int64 `json:"members"`
	} `json:"conversations"`
}

func main() {
	_ = godotenv.Load()
	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB")
	seed := flag.String("seed", "", "JSON file with users and conversations to load first")
	limit := flag.Int("limit", 5, "Notifications shown per user")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("missing -db or BADGER_FILEPATH")
	}
	ctx := context.Background()
	logger := logs.GetLoggerFromLevel(slog.LevelWarn)

	opts := badger.DefaultOptions(*dbPath).WithLogger(nil).WithBypassLockGuard(true)
	if *seed == "" {
		opts = opts.WithReadOnly(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	users := repositories.NewUserRepository(db, logger)
	if *seed != "" {
		if err := load(ctx, *seed, users, repositories.NewConversationRepository(db)); err != nil {
			log.Fatal(err)
		}
	}

	notifications, err := repositories.NewNotificationRepository(db, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer notifications.Close()

	all, err := users.ListUsers(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render("  ====== Users ======"))
	table := newTable([]string{"ID", "Name", "Email", "Sessions"})
	for _, u := range all {
		sessions := strconv.FormatInt(u.Online, 10)
		if u.IsOnline() {
			sessions = color.FgGreen.Render(sessions)
		}
		table.Append([]string{strconv.FormatInt(int64(u.ID), 10), u.DisplayName(), u.Email, sessions})
	}
	table.Render()

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render("  ====== Notifications ======"))
	table = newTable([]string{"ID", "Recipient", "Conversation", "Title", "Text", "Notified", "Created"})
	for _, u := range all {
		list, err := notifications.ListNotifications(ctx, u.ID, *limit)
		if err != nil {
			log.Fatal(err)
		}
		for _, n := range list {
			conversation := "-"
			if n.ConversationID != nil {
				conversation = strconv.FormatInt(int64(*n.ConversationID), 10)
			}
			notified := color.FgYellow.Render("unread")
			if n.Notified {
				notified = "read"
			}
			table.Append([]string{
				strconv.FormatInt(int64(n.ID), 10),
				u.ShortName(),
				conversation,
				n.Title,
				n.Text,
				notified,
				n.CreatedAt.Format(time.DateTime),
			})
		}
	}
	table.Render()
}

func load(ctx context.Context, path string, users *repositories.UserRepository,
	conversations *repositories.ConversationRepository) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, u := range seed.Users {
		user := domain.User{ID: domain.UserID(u.ID), FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
		if err := users.PutUser(ctx, user); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	for _, c := range seed.Conversations {
		conversation := domain.Conversation{
			ID:        domain.ConversationID(c.ID),
			Title:     c.Title,
			Members:   lo.Map(c.Members, func(id int64, _ int) domain.UserID { return domain.UserID(id) }),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := conversations.PutConversation(ctx, conversation); err != nil {
			return err
		}
	}
	fmt.Printf("Seeded %d users and %d conversations from %s\n",
		len(seed.Users), len(seed.Conversations), strings.TrimSpace(path))
	return nil
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
