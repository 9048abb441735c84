package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// The NFT metadata-patcher, the Metaplex items writer, and the Solana
// co-signing service are external collaborators this client talks to,
// never reimplements. These four commands stay in the tree so
// `arloader --help` lists the full surface, but each errors out
// pointing at the real tool.

func externalCollaboratorCmd(use, short, collaborator string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("%s is not implemented by this client; run %s directly", use, collaborator)
		},
	}
}

var (
	uploadNFTsCmd        = externalCollaboratorCmd("upload-nfts", "Upload NFT assets and metadata (delegates to the metadata-patcher)", "the NFT metadata-patcher")
	updateMetadataCmd    = externalCollaboratorCmd("update-metadata", "Patch already-uploaded NFT metadata", "the NFT metadata-patcher")
	updateNFTStatusCmd   = externalCollaboratorCmd("update-nft-status", "Reconcile NFT transaction statuses", "the NFT metadata-patcher")
	writeMetaplexItemsCmd = externalCollaboratorCmd("write-metaplex-items", "Write a Metaplex candy machine items file", "the Metaplex items writer")
)

func init() {
	rootCmd.AddCommand(uploadNFTsCmd)
	rootCmd.AddCommand(updateMetadataCmd)
	rootCmd.AddCommand(updateNFTStatusCmd)
	rootCmd.AddCommand(writeMetaplexItemsCmd)
}
