package manuals

import "time"

var seedTimestamp = time.Date(2026, time.January, 12, 9, 0, 0, 0, time.UTC)

// SeedManuals returns the built-in manuals shipped with the portal.
// Each call returns fresh copies.
func SeedManuals() []Manual {
	seeds := []Manual{
		{
			ID:          "1",
			Title:       "VS Code setup for the team workspace",
			Description: "Install the editor, recommended extensions and shared settings.",
			Blocks: []Block{
				{Kind: BlockHeading, Value: "Install"},
				{Kind: BlockText, Value: "Download the stable build and sign in with your work account."},
				{Kind: BlockCode, Value: "code --install-extension golang.go"},
			},
			Category:  CategoryDevelopment,
			Tags:      []string{"editor", "setup", "vscode"},
			Version:   "2.1",
			Versions:  []string{"1.0", "2.0", "2.1"},
			Status:    StatusPublished,
			Author:    "QuickHelp Team",
			Thumbnail: "/images/manuals/vscode.png",
		},
		{
			ID:          "2",
			Title:       "Requesting VPN access",
			Description: "How to request, install and troubleshoot the corporate VPN client.",
			Sections: []Section{
				{Title: "Request", Content: "Open a ticket with the IT service desk."},
				{Title: "Troubleshooting", Content: "Restart the client and re-enter your token."},
			},
			Category: CategorySecurity,
			Tags:     []string{"vpn", "network", "access"},
			Version:  "1.3",
			Versions: []string{"1.0", "1.3"},
			Status:   StatusPublished,
			Author:   "IT Security",
		},
		{
			ID:          "3",
			Title:       "Git branching conventions",
			Description: "Branch names, commit messages and review etiquette used across repositories.",
			Blocks: []Block{
				{Kind: BlockText, Value: "Feature branches start from main and are rebased before merge."},
				{Kind: BlockQuote, Value: "Small pull requests get reviewed faster."},
			},
			Category: CategoryDevelopment,
			Tags:     []string{"git", "workflow"},
			Version:  "1.0",
			Versions: []string{"1.0"},
			Status:   StatusPublished,
			Author:   "Platform Engineering",
		},
		{
			ID:          "4",
			Title:       "Design system tokens",
			Description: "Color, spacing and typography tokens for product UI work.",
			Blocks: []Block{
				{Kind: BlockHeading, Value: "Tokens"},
				{Kind: BlockImage, Value: "/images/manuals/tokens.png"},
			},
			Category: CategoryDesign,
			Tags:     []string{"figma", "ui", "tokens"},
			Version:  "3.0",
			Versions: []string{"1.0", "2.0", "3.0"},
			Status:   StatusPublished,
			Author:   "Design Ops",
		},
		{
			ID:          "5",
			Title:       "First week onboarding checklist",
			Description: "Accounts, hardware and introductions for new joiners.",
			Sections: []Section{
				{Title: "Day one", Content: "Collect your laptop and set up VS Code and Slack."},
				{Title: "Day two", Content: "Meet your onboarding buddy."},
			},
			Category: CategoryOnboarding,
			Tags:     []string{"onboarding", "checklist"},
			Version:  "1.1",
			Versions: []string{"1.0", "1.1"},
			Status:   StatusPublished,
			Author:   "People Team",
		},
		{
			ID:          "6",
			Title:       "Incident response runbook",
			Description: "Severity levels, paging rotation and post-incident review.",
			Blocks: []Block{
				{Kind: BlockHeading, Value: "Severity"},
				{Kind: BlockText, Value: "SEV1 pages the on-call engineer and the incident commander."},
			},
			Category: CategoryOperations,
			Tags:     []string{"incident", "on-call"},
			Version:  "2.0",
			Versions: []string{"1.0", "2.0"},
			Status:   StatusPublished,
			Author:   "SRE",
		},
		{
			ID:          "7",
			Title:       "Expense reporting",
			Description: "Submitting receipts and approval limits for travel and equipment.",
			Category:    CategoryHR,
			Tags:        []string{"finance", "travel"},
			Version:     "1.0",
			Versions:    []string{"1.0"},
			Status:      StatusPublished,
			Author:      "Finance",
		},
	}
	for index := range seeds {
		seeds[index].CreatedAt = seedTimestamp
		seeds[index].UpdatedAt = seedTimestamp
	}
	return seeds
}
