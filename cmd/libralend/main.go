// cmd/libralend/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"libralend/internal/audit"
	"libralend/internal/catalog"
	"libralend/internal/config"
	"libralend/internal/ledger"
	"libralend/internal/lending"
	"libralend/internal/storage"
)

const exportPath = "exported_user_log.csv"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.Open(cfg.StorageDriver, cfg.StorageDSN)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	books, issuances, entries, err := store.LoadAll(ctx)
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}

	cat := catalog.NewStore()
	cat.Restore(books)
	led := ledger.NewLedger()
	led.Restore(issuances)
	auditLog := audit.NewLog()
	auditLog.Restore(entries)

	svc := lending.NewService(cat, led, auditLog, store, nil)

	runMenu(ctx, svc, bufio.NewScanner(os.Stdin))
}

func runMenu(ctx context.Context, svc lending.Service, in *bufio.Scanner) {
	for {
		fmt.Println("\nLibrary System Menu")
		fmt.Println("1. Add Book")
		fmt.Println("2. List Books")
		fmt.Println("3. Issue Book")
		fmt.Println("4. Return Book")
		fmt.Println("5. Most Borrowed Books")
		fmt.Println("6. Export User Log")
		fmt.Println("7. Exit")

		choice := prompt(in, "Choose option: ")
		switch choice {
		case "1":
			addBook(ctx, svc, in)
		case "2":
			listBooks(ctx, svc)
		case "3":
			issueBook(ctx, svc, in)
		case "4":
			returnBook(ctx, svc, in)
		case "5":
			mostBorrowed(ctx, svc)
		case "6":
			exportLog(ctx, svc)
		case "7":
			fmt.Println("Exiting system.")
			return
		default:
			fmt.Println("Invalid choice.")
		}
	}
}

func prompt(in *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !in.Scan() {
		return "7" // EOF exits the menu
	}
	return strings.TrimSpace(in.Text())
}

func addBook(ctx context.Context, svc lending.Service, in *bufio.Scanner) {
	id := prompt(in, "Book ID: ")
	title := prompt(in, "Title: ")
	author := prompt(in, "Author: ")
	copies, err := strconv.Atoi(prompt(in, "Number of Copies: "))
	if err != nil {
		fmt.Println("Invalid copy count.")
		return
	}

	if _, err := svc.AddBook(ctx, id, title, author, copies); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Book added!")
}

func listBooks(ctx context.Context, svc lending.Service) {
	books := svc.ListInventory(ctx)
	if len(books) == 0 {
		fmt.Println("No books in inventory.")
		return
	}
	fmt.Println("\nBook Inventory:")
	fmt.Printf("%-10s %-30s %-20s %s\n", "ID", "Title", "Author", "Available/Total")
	for _, b := range books {
		fmt.Printf("%-10s %-30s %-20s %d/%d\n", b.ID, b.Title, b.Author, b.AvailableCopies, b.TotalCopies)
	}
}

func issueBook(ctx context.Context, svc lending.Service, in *bufio.Scanner) {
	bookID := prompt(in, "Book ID to issue: ")
	borrower := prompt(in, "User name: ")

	dueDate, err := svc.IssueBook(ctx, bookID, borrower, time.Now())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Book issued until %s\n", dueDate.Format(time.DateOnly))
}

func returnBook(ctx context.Context, svc lending.Service, in *bufio.Scanner) {
	bookID := prompt(in, "Book ID to return: ")
	borrower := prompt(in, "User name: ")

	fine, err := svc.ReturnBook(ctx, bookID, borrower, time.Now())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if fine > 0 {
		fmt.Printf("Book returned! Fine: %d\n", fine)
	} else {
		fmt.Println("Book returned on time.")
	}
}

func mostBorrowed(ctx context.Context, svc lending.Service) {
	report := svc.MostBorrowedReport(ctx, 5)
	if len(report) == 0 {
		fmt.Println("No borrow data available.")
		return
	}
	fmt.Println("\nMost Borrowed Books:")
	for _, row := range report {
		fmt.Printf("%-10s %d\n", row.BookID, row.Count)
	}
}

func exportLog(ctx context.Context, svc lending.Service) {
	f, err := os.Create(exportPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer f.Close()

	if err := svc.ExportLog(ctx, f); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("User log exported to %s\n", exportPath)
}
