package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sha5b/DynamiCrafter/pkg/auth"
	"github.com/sha5b/DynamiCrafter/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Hugging Face access tokens",
	Long: `Manage stored Hugging Face access tokens securely.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (HF_TOKEN, HUGGING_FACE_HUB_TOKEN)

The DynamiCrafter checkpoints are public, so a token is optional.
A token raises rate limits and is required for gated repositories.

Never share your token or config files!`,
}

// addCmd represents the auth add command
var addCmd = &cobra.Command{
	Use:     "add [profile]",
	Aliases: []string{"login"},
	Short:   "Store a Hugging Face access token securely",
	Long: `Store a Hugging Face access token in the system keychain or an encrypted file.

You will be prompted for:
  - Profile name (if not provided, "default" is used)
  - The token itself (input is hidden)

Create a token with the Read role at:
  https://huggingface.co/settings/tokens`,
	Example: `  # Store a token under the default profile
  dynamicrafter auth add

  # Store a token under a named profile
  dynamicrafter auth add work`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAuthAdd,
}

// removeCmd represents the auth remove command
var removeCmd = &cobra.Command{
	Use:     "remove [profile]",
	Aliases: []string{"logout"},
	Short:   "Remove a stored token",
	Long: `Remove a stored Hugging Face access token.

If no profile is provided, you will be shown a list of stored profiles
to choose from. You can also remove all tokens at once.`,
	Example: `  # Interactive removal
  dynamicrafter auth remove

  # Remove a specific profile
  dynamicrafter auth remove work`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAuthRemove,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored token profiles",
	Long:  `List all stored Hugging Face token profiles with the secret masked.`,
	Run:   runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(addCmd)
	authCmd.AddCommand(removeCmd)
	authCmd.AddCommand(listCmd)
}

func runAuthAdd(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize token manager", err.Error())
		os.Exit(1)
	}

	profile := auth.DefaultProfile
	if len(args) > 0 {
		profile = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	// Show the token guide first
	auth.ShowTokenGuide()

	// Ask if ready to continue
	fmt.Print("Ready to enter your token? (Y/n): ")
	ready, _ := reader.ReadString('\n')
	if strings.ToLower(strings.TrimSpace(ready)) == "n" {
		fmt.Println("\nRun 'dynamicrafter auth add' when you're ready.")
		return
	}

	// Check if the profile already exists
	if existing, _ := manager.Retrieve(profile); existing != nil {
		fmt.Printf("\n⚠️  Profile '%s' already exists. Update the token? (y/N): ", profile)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("\n🔐 Enter your token (it will be hidden as you type):")
	fmt.Println()

	// Get the token with validation
	var value string
	for {
		fmt.Printf("access token: ")
		value, err = readSecret()
		if err != nil {
			ui.PrintError("Failed to read token", err.Error())
			os.Exit(1)
		}

		// Basic validation
		if !strings.HasPrefix(value, "hf_") || len(value) < 10 {
			fmt.Println("\n❌ That doesn't look like a valid Hugging Face token.")
			fmt.Println("   It should start with 'hf_'.")
			fmt.Println("   Example: hf_AbCdEfGhIjKlMnOpQrStUvWxYz")
			fmt.Print("\nTry again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	// Show what we're about to do
	fmt.Println("\n📋 Summary:")
	fmt.Printf("   Profile: %s\n", profile)
	fmt.Printf("   Token: %s...%s (hidden)\n", value[:6], value[len(value)-4:])

	token := &auth.Token{
		Profile:      profile,
		Value:        value,
		LastModified: time.Now(),
	}

	// Store the token
	fmt.Println("\n💾 Storing token securely...")
	if err := manager.Store(token); err != nil {
		ui.PrintError("Failed to store token", err.Error())
		os.Exit(1)
	}

	fmt.Println("\n🎉 Token stored successfully!")
	ui.PrintSuccess(fmt.Sprintf("Profile saved: %s", profile))

	// Show where the token is stored
	fmt.Println("\n🔒 Security Information:")
	fmt.Println("   Your token is encrypted and stored in:")
	if auth.IsKeyringAvailable() {
		fmt.Println("   • System keychain (primary)")
	}
	fmt.Println("   • Encrypted file (backup)")

	// Show how to use
	fmt.Println("\n📖 Quick Start Guide:")
	fmt.Println("   Download a checkpoint:")
	fmt.Printf("   $ dynamicrafter fetch dynamicrafter_512_v1\n")
	if profile != auth.DefaultProfile {
		fmt.Println("\n   Use this profile:")
		fmt.Printf("   $ dynamicrafter fetch dynamicrafter_512_v1 --profile %s\n", profile)
	}
	fmt.Println("\n⚠️  Never share your token or config files!")
}

func runAuthRemove(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize token manager", err.Error())
		os.Exit(1)
	}

	if len(args) == 0 {
		// List profiles and ask which to remove
		tokens, err := manager.List()
		if err != nil || len(tokens) == 0 {
			ui.PrintError("No stored tokens found", "")
			return
		}

		if len(tokens) == 1 {
			// Only one profile, confirm deletion
			token := tokens[0]
			reader := bufio.NewReader(os.Stdin)
			fmt.Printf("Remove profile '%s'? (y/N): ", token.Profile)
			input, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
				return
			}

			if err := manager.Delete(token.Profile); err != nil {
				ui.PrintError("Failed to remove token", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("Token removed: " + token.Profile)
			return
		}

		// Multiple profiles, show menu
		fmt.Println("Select profile to remove:")
		for i, token := range tokens {
			fmt.Printf("  %d. %s\n", i+1, token.Profile)
		}
		fmt.Printf("  %d. Remove all tokens\n", len(tokens)+1)
		fmt.Printf("  0. Cancel\n\n")

		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Choice: ")
		input, _ := reader.ReadString('\n')

		var choice int
		fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

		if choice == 0 {
			return
		} else if choice == len(tokens)+1 {
			// Remove all
			fmt.Print("Remove ALL tokens? This cannot be undone! (yes/N): ")
			confirm, _ := reader.ReadString('\n')
			if strings.TrimSpace(confirm) != "yes" {
				return
			}

			if err := manager.DeleteAll(); err != nil {
				ui.PrintError("Failed to remove all tokens", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("All tokens removed")
			return
		} else if choice > 0 && choice <= len(tokens) {
			token := tokens[choice-1]
			if err := manager.Delete(token.Profile); err != nil {
				ui.PrintError("Failed to remove token", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("Token removed: " + token.Profile)
			return
		} else {
			ui.PrintError("Invalid choice", "")
			os.Exit(1)
		}
	}

	// Profile provided as argument
	profile := args[0]
	if err := manager.Delete(profile); err != nil {
		ui.PrintError("Failed to remove token", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Token removed: " + profile)
}

func runAuthList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize token manager", err.Error())
		os.Exit(1)
	}

	tokens, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list tokens", err.Error())
		os.Exit(1)
	}

	if len(tokens) == 0 {
		ui.PrintInfo("No stored tokens", "Use 'dynamicrafter auth add' to store one")
		return
	}

	ui.PrintHighlight("Stored Token Profiles")
	fmt.Println()

	for i, token := range tokens {
		sanitized := auth.SanitizeToken(token)
		fmt.Printf("%d. Profile: %s\n", i+1, sanitized.Profile)
		fmt.Printf("   Token: %s\n", sanitized.Value)
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// readSecret reads a secret from stdin without echoing
func readSecret() (string, error) {
	// Try to read without echo
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // New line after input
		if err == nil {
			return string(secret), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
