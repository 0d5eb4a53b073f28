package auth

import (
	"fmt"
	"strings"
)

// ShowTokenGuide displays step-by-step instructions for creating an access token
func ShowTokenGuide() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("📚 HUGGING FACE ACCESS TOKEN GUIDE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	fmt.Println("The DynamiCrafter checkpoints are public, so a token is optional.")
	fmt.Println("A token raises your rate limits and is required for gated repositories.")
	fmt.Println()

	fmt.Println("🌐 STEP 1: Log in to Hugging Face")
	fmt.Println("   - Go to https://huggingface.co")
	fmt.Println("   - Sign in, or create a free account")
	fmt.Println()

	fmt.Println("🔧 STEP 2: Open the token settings")
	fmt.Println("   - Go to https://huggingface.co/settings/tokens")
	fmt.Println("   - Or: click your avatar → Settings → Access Tokens")
	fmt.Println()

	fmt.Println("🔑 STEP 3: Create a token")
	fmt.Println("   - Click 'New token'")
	fmt.Println("   - Give it a name, e.g. 'dynamicrafter'")
	fmt.Println("   - Role 'Read' is enough for downloading weights")
	fmt.Println("   - Copy the token, it starts with 'hf_'")
	fmt.Println()

	fmt.Println("💾 STEP 4: Store it")
	fmt.Println("   - Run: dynamicrafter auth add")
	fmt.Println("   - Or export it: export HF_TOKEN=hf_...")
	fmt.Println()

	fmt.Println("💡 TIPS:")
	fmt.Println("   • The token is stored in your system keychain when available,")
	fmt.Println("     otherwise in an encrypted file under your config directory")
	fmt.Println("   • HUGGING_FACE_HUB_TOKEN is honored too, for parity with the")
	fmt.Println("     Python huggingface_hub client")
	fmt.Println()

	fmt.Println("⚠️  SECURITY WARNING:")
	fmt.Println("   • A token grants access to your Hugging Face account")
	fmt.Println("   • NEVER commit it to a repository or share it")
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// ShowQuickTokenGuide shows a condensed version for experienced users
func ShowQuickTokenGuide() {
	fmt.Println("\n🔑 Quick Guide: https://huggingface.co/settings/tokens → New token (Read role)")
	fmt.Println("   Then: dynamicrafter auth add  (or export HF_TOKEN=hf_...)")
	fmt.Println("   Type 'help' for detailed instructions")
}
