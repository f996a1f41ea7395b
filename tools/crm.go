// CRM lookup tools.
//
// Information Hiding:
// - Repository access hidden behind read-only tool operations
// - Record formatting hidden; the model sees stable plain-text layouts

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/richinex/agentrag/storage"
)

var amountPrinter = message.NewPrinter(language.English)

// formatCredit renders an amount as rupees with thousands separators.
func formatCredit(v float64) string {
	return amountPrinter.Sprintf("₹%.2f", v)
}

// FormatCustomer renders one record in the layout used by the lookup tools.
func FormatCustomer(c storage.Customer) string {
	return fmt.Sprintf("Business Client ID: %d\nName: %s\nAddress: %s\nEmail: %s\nPhone: %s\nCredit: %s\nStatus: %s",
		c.ID, c.Name, c.Address, c.Email, c.Phone, formatCredit(c.Credit), c.Status)
}

// formatCustomerList renders numbered, indented records under header.
func formatCustomerList(header string, customers []storage.Customer) string {
	var b strings.Builder
	b.WriteString(header)
	for i, c := range customers {
		fmt.Fprintf(&b, "\n\n%d. Business Client ID: %d\n   Name: %s\n   Email: %s\n   Phone: %s\n   Address: %s\n   Credit: %s\n   Status: %s",
			i+1, c.ID, c.Name, c.Email, c.Phone, c.Address, formatCredit(c.Credit), c.Status)
	}
	return b.String()
}

// CRMTools returns the five read-only CRM tools backed by repo.
func CRMTools(repo storage.CustomerRepository) []Tool {
	return []Tool{
		&clientByIDTool{repo: repo},
		&clientByEmailTool{repo: repo},
		&searchClientsTool{repo: repo},
		&activeClientsTool{repo: repo},
		&clientCountTool{repo: repo},
	}
}

type clientByIDTool struct {
	BaseTool
	repo storage.CustomerRepository
}

func (t *clientByIDTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "get_business_client_by_id",
		Description: "Retrieve a business client's complete details by their client ID (CRM database). " +
			"Use when the user asks about a specific business client by ID number.",
		Parameters: []ToolParameter{
			{Name: "client_id", ParamType: "integer", Description: "The unique business client ID number", Required: true},
		},
	}
}

func (t *clientByIDTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a struct {
		ClientID int64 `json:"client_id"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return FailureResult(err), nil
	}

	c, err := t.repo.Get(ctx, a.ClientID)
	if errors.Is(err, storage.ErrCustomerNotFound) {
		return SuccessResult(fmt.Sprintf("Error: Business client with ID %d not found in the database.", a.ClientID)), nil
	}
	if err != nil {
		return FailureResultf("error retrieving business client: %w", err), nil
	}
	return SuccessResult(FormatCustomer(c)), nil
}

type clientByEmailTool struct {
	BaseTool
	repo storage.CustomerRepository
}

func (t *clientByEmailTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "get_business_client_by_email",
		Description: "Retrieve a business client's complete details by their email address (CRM database). " +
			"Use when the user asks about a business client by email.",
		Parameters: []ToolParameter{
			{Name: "email", ParamType: "string", Description: "The business client's email address", Required: true},
		},
	}
}

func (t *clientByEmailTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a struct {
		Email string `json:"email"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return FailureResult(err), nil
	}

	c, err := t.repo.GetByEmail(ctx, strings.TrimSpace(a.Email))
	if errors.Is(err, storage.ErrCustomerNotFound) {
		return SuccessResult(fmt.Sprintf("Error: Business client with email '%s' not found in the database.", a.Email)), nil
	}
	if err != nil {
		return FailureResultf("error retrieving business client: %w", err), nil
	}
	return SuccessResult(FormatCustomer(c)), nil
}

type searchClientsTool struct {
	BaseTool
	repo storage.CustomerRepository
}

func (t *searchClientsTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "search_business_clients",
		Description: "Search for business clients by name or email using a search term (CRM database). " +
			"Use to find clients by partial or full name, or by email pattern.",
		Parameters: []ToolParameter{
			{Name: "search_term", ParamType: "string", Description: "Term to search for in client names or emails", Required: true},
		},
	}
}

func (t *searchClientsTool) Validate(args json.RawMessage) error {
	var a struct {
		SearchTerm string `json:"search_term"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if strings.TrimSpace(a.SearchTerm) == "" {
		return errors.New("search_term cannot be empty")
	}
	return nil
}

func (t *searchClientsTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a struct {
		SearchTerm string `json:"search_term"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return FailureResult(err), nil
	}

	found, err := t.repo.Search(ctx, strings.TrimSpace(a.SearchTerm))
	if err != nil {
		return FailureResultf("error searching business clients: %w", err), nil
	}
	if len(found) == 0 {
		return SuccessResult(fmt.Sprintf("No business clients found matching the search term '%s'.", a.SearchTerm)), nil
	}
	header := fmt.Sprintf("Found %d business client(s) matching '%s':", len(found), a.SearchTerm)
	return SuccessResult(formatCustomerList(header, found)), nil
}

type activeClientsTool struct {
	BaseTool
	repo storage.CustomerRepository
}

func (t *activeClientsTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "get_active_business_clients",
		Description: "Retrieve a list of all active business clients only (CRM database). " +
			"Use when the user asks which business clients are currently active.",
	}
}

func (t *activeClientsTool) Execute(ctx context.Context, _ json.RawMessage) (ToolResult, error) {
	active, err := t.repo.ListActive(ctx)
	if err != nil {
		return FailureResultf("error retrieving active business clients: %w", err), nil
	}
	if len(active) == 0 {
		return SuccessResult("No active business clients found in the database."), nil
	}
	header := fmt.Sprintf("Total Active Business Clients: %d", len(active))
	return SuccessResult(formatCustomerList(header, active)), nil
}

type clientCountTool struct {
	BaseTool
	repo storage.CustomerRepository
}

func (t *clientCountTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "get_business_client_count",
		Description: "Get the total number of business clients in the CRM database, " +
			"with the active and inactive breakdown.",
	}
}

func (t *clientCountTool) Execute(ctx context.Context, _ json.RawMessage) (ToolResult, error) {
	n, err := t.repo.Count(ctx)
	if err != nil {
		return FailureResultf("error getting business client count: %w", err), nil
	}
	return SuccessResult(fmt.Sprintf("Total Business Clients: %d\nActive Business Clients: %d\nInactive Business Clients: %d",
		n.Total, n.Active, n.Inactive)), nil
}
