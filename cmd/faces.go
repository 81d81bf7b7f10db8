package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/vision-assist/internal/constants"
	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/enroll"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Manage enrolled faces",
	Long:  "Commands for adding, renaming, removing and searching the faces that can be recognized.",
}

var facesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled faces",
	Args:  cobra.NoArgs,
	RunE:  runFacesList,
}

var facesAddCmd = &cobra.Command{
	Use:   "add <name> <photo>",
	Short: "Enroll the largest face of a photo",
	Long: `Detect faces in the photo, crop the largest one and store it under name.

Examples:
  vision-assist faces add "Jane Doe" jane.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runFacesAdd,
}

var facesRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename an enrolled face",
	Args:  cobra.ExactArgs(2),
	RunE:  runFacesRename,
}

var facesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete enrolled faces",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFacesDelete,
}

var facesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all enrolled faces",
	Args:  cobra.NoArgs,
	RunE:  runFacesClear,
}

var facesImportCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Enroll every photo of a directory",
	Long: `Enroll the photos of a directory in parallel.

Photos directly in the directory are named after the file, so "jane_doe.jpg"
is enrolled as "jane doe". Photos inside a subdirectory are enrolled under
the subdirectory name, so "Jane Doe/1.jpg" and "Jane Doe/2.jpg" both become
"Jane Doe".`,
	Args: cobra.ExactArgs(1),
	RunE: runFacesImport,
}

var facesSimilarCmd = &cobra.Command{
	Use:   "similar <photo>",
	Short: "Find enrolled faces closest to the largest face of a photo",
	Long: `Rank enrolled faces by the Euclidean distance between their stored
embedding and the embedding of the largest face in the photo.`,
	Args: cobra.ExactArgs(1),
	RunE: runFacesSimilar,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesListCmd, facesAddCmd, facesRenameCmd, facesDeleteCmd,
		facesClearCmd, facesImportCmd, facesSimilarCmd)

	facesListCmd.Flags().String("name", "", "Only faces with this name (ignores case and diacritics)")
	facesListCmd.Flags().Bool("json", false, "Output as JSON")

	facesClearCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	facesImportCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of parallel workers")
	facesImportCmd.Flags().Bool("dry-run", false, "Only print what would be enrolled")

	facesSimilarCmd.Flags().Int("limit", constants.DefaultSimilarLimit, "Number of results")
	facesSimilarCmd.Flags().Bool("json", false, "Output as JSON")
}

func parseFaceID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid face id %q", arg)
	}
	return id, nil
}

func runFacesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	var faces []database.FaceRecord
	if name := mustGetString(cmd, "name"); name != "" {
		faces, err = svc.store.FindFacesByName(ctx, name)
	} else {
		faces, err = svc.store.ListFaces(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list faces: %w", err)
	}

	if mustGetBool(cmd, "json") {
		type faceJSON struct {
			ID           int64  `json:"id"`
			Name         string `json:"name"`
			HasEmbedding bool   `json:"has_embedding"`
			CreatedAt    string `json:"created_at"`
		}
		out := make([]faceJSON, len(faces))
		for i, f := range faces {
			out[i] = faceJSON{ID: f.ID, Name: f.Name, HasEmbedding: len(f.Embedding) > 0, CreatedAt: f.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(faces) == 0 {
		fmt.Println("No faces enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMBEDDING\tENROLLED")
	for _, f := range faces {
		emb := "-"
		if len(f.Embedding) > 0 {
			emb = fmt.Sprintf("%d dims", len(f.Embedding))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", f.ID, f.Name, emb, f.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	fmt.Printf("\nTotal: %d faces\n", len(faces))
	return nil
}

func runFacesAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	photo, err := loadImageFile(args[1])
	if err != nil {
		return err
	}

	rec, err := svc.enrollService(nil).Enroll(ctx, args[0], photo)
	if err != nil {
		return fmt.Errorf("failed to enroll %s: %w", args[0], err)
	}
	fmt.Printf("Enrolled %s (id %d)\n", rec.Name, rec.ID)
	return nil
}

func runFacesRename(cmd *cobra.Command, args []string) error {
	id, err := parseFaceID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if strings.TrimSpace(args[1]) == "" {
		return database.ErrEmptyName
	}
	rec, err := svc.enrollService(nil).Update(ctx, id, args[1], nil)
	if err != nil {
		return fmt.Errorf("failed to rename face %d: %w", id, err)
	}
	fmt.Printf("Face %d renamed to %s\n", rec.ID, rec.Name)
	return nil
}

func runFacesDelete(cmd *cobra.Command, args []string) error {
	ids := make([]int64, len(args))
	for i, arg := range args {
		id, err := parseFaceID(arg)
		if err != nil {
			return err
		}
		ids[i] = id
	}

	ctx := context.Background()
	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	service := svc.enrollService(nil)
	for _, id := range ids {
		if err := service.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete face %d: %w", id, err)
		}
		fmt.Printf("Deleted face %d\n", id)
	}
	return nil
}

func runFacesClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	count, err := svc.store.CountFaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to count faces: %w", err)
	}
	if count == 0 {
		fmt.Println("No faces enrolled")
		return nil
	}

	if !mustGetBool(cmd, "yes") {
		fmt.Printf("Delete all %d enrolled faces? [y/N]: ", count)
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Aborted")
			return nil
		}
	}

	n, err := svc.enrollService(nil).DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete faces: %w", err)
	}
	fmt.Printf("Deleted %d faces\n", n)
	return nil
}

func runFacesImport(cmd *cobra.Command, args []string) error {
	items, err := enroll.PlanImport(args[0])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No photos found")
		return nil
	}

	if mustGetBool(cmd, "dry-run") {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPHOTO")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\n", item.Name, item.Path)
		}
		w.Flush()
		fmt.Printf("\n%d photos would be enrolled\n", len(items))
		return nil
	}

	ctx := context.Background()
	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.checkModel(ctx); err != nil {
		return err
	}

	fmt.Printf("Enrolling %d photos\n\n", len(items))
	bar := progressbar.NewOptions(len(items),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	results := svc.enrollService(nil).Import(ctx, items, mustGetInt(cmd, "concurrency"), func(enroll.ImportResult) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	fmt.Println()

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Printf("  %s: %v\n", res.Item.Path, res.Err)
		}
	}
	fmt.Printf("\nEnrolled %d of %d photos", len(results)-failed, len(results))
	if failed > 0 {
		fmt.Printf(" (%d failed)", failed)
	}
	fmt.Println()
	return nil
}

func runFacesSimilar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	photo, err := loadImageFile(args[0])
	if err != nil {
		return err
	}

	face, err := svc.enrollService(nil).PrepareFace(ctx, photo)
	if err != nil {
		return err
	}

	similar, err := svc.store.FindSimilarFaces(ctx, face.Embedding, mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("failed to search faces: %w", err)
	}

	if mustGetBool(cmd, "json") {
		type similarJSON struct {
			ID       int64   `json:"id"`
			Name     string  `json:"name"`
			Distance float64 `json:"distance"`
			Match    bool    `json:"match"`
		}
		out := make([]similarJSON, len(similar))
		for i, s := range similar {
			out[i] = similarJSON{ID: s.ID, Name: s.Name, Distance: s.Distance, Match: s.Distance < svc.cfg.Recognition.Threshold}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Largest face at %v\n\n", face.Box)
	if len(similar) == 0 {
		fmt.Println("No enrolled faces with a stored embedding")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDISTANCE\tMATCH")
	for _, s := range similar {
		match := "no"
		if s.Distance < svc.cfg.Recognition.Threshold {
			match = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\n", s.ID, s.Name, s.Distance, match)
	}
	w.Flush()
	return nil
}
