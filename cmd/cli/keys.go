package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/keytrust/internal/application/dto"
)

func newKeysCommand(opts *rootOptions) *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored keys, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			infos, err := rt.lifecycle.ListKeys(cmd.Context())
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), &dto.KeyListResponse{Keys: infos, Total: len(infos)})
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KID\tSTATE\tCREATED\tEXPIRES")
			for _, k := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k.KeyID, k.State, k.CreatedAt.Format(time.RFC3339), k.ExpiresAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	var force bool
	rotate := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the signing key if it is due",
		Long: `Rotate mints a new active key when the current one is within the rotation
advance window. --force rotates unconditionally, for example after a suspected compromise.
Superseded keys keep verifying tokens until they expire.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			rotateFn := rt.lifecycle.Rotate
			if force {
				rotateFn = rt.lifecycle.ForceRotate
			}
			res, err := rotateFn(cmd.Context())
			if err != nil {
				return err
			}
			out := &dto.RotationResponse{Rotated: res.Rotated, PreviousKeyID: res.PreviousKeyID, ActiveKey: res.Key.Info(time.Now())}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if !out.Rotated {
				fmt.Fprintf(cmd.OutOrStdout(), "no rotation needed, active key %s expires %s\n", out.ActiveKey.KeyID, out.ActiveKey.ExpiresAt.Format(time.RFC3339))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rotated: new active key %s", out.ActiveKey.KeyID)
			if out.PreviousKeyID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), ", superseded %s", out.PreviousKeyID)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	rotate.Flags().BoolVar(&force, "force", false, "rotate even if the active key is not due")

	deactivate := &cobra.Command{
		Use:   "deactivate-expired",
		Short: "Clear the active flag of keys past their expiry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.lifecycle.DeactivateExpired(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d key(s)\n", n)
			return nil
		},
	}

	var retention time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete keys expired for longer than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.lifecycle.PurgeExpired(cmd.Context(), retention)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), &dto.PurgeResponse{Purged: n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d key(s)\n", n)
			return nil
		},
	}
	purge.Flags().DurationVar(&retention, "retention", 0, "keep keys expired for less than this (default: keys.purge_retention)")

	keys.AddCommand(list, rotate, deactivate, purge)
	return keys
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
