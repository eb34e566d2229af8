package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/NikkuNoShori/RepoMonitor/internal/config"
	"github.com/NikkuNoShori/RepoMonitor/pkg/client"
)

var outputJSON bool

var rootCmd = &cobra.Command{
	Use:   "repomonitor",
	Short: "RepoMonitor dashboard tool",
	Long: `A CLI tool for the RepoMonitor dashboard.

Track GitHub repositories, trigger aggregation refreshes and display
dashboard statistics such as the cross-repository open issue total.`,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dashboard statistics",
	Long:  `Display the current dashboard view state: open issues, tracked and analyzed repositories, and active jobs.`,
	RunE:  runStats,
}

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List tracked repositories",
	Long:  `Display the tracked repository list with the last known open issue counts.`,
	RunE:  runRepos,
}

var trackCmd = &cobra.Command{
	Use:   "track [owner/name]",
	Short: "Track a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrack,
}

var untrackCmd = &cobra.Command{
	Use:   "untrack [owner/name]",
	Short: "Stop tracking a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runUntrack,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Trigger an aggregation refresh",
	Long:  `Run one batched aggregation over all tracked repositories and print the result.`,
	RunE:  runRefresh,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reposCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(refreshCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getClient() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return client.NewClient(cfg.APIEndpoint, cfg.APIToken), nil
}

func splitRepoArg(arg string) (string, string, error) {
	owner, name, ok := strings.Cut(arg, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("expected owner/name, got %q", arg)
	}
	return owner, name, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	stats, err := c.GetDashboardStats()
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(stats)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Open Issues", "Tracked", "Analyzed", "Active Jobs"})
	table.Append([]string{
		strconv.Itoa(stats.OpenIssues),
		strconv.Itoa(stats.TrackedRepos),
		strconv.Itoa(stats.AnalyzedRepos),
		strconv.Itoa(stats.ActiveJobs),
	})
	table.Render()

	if stats.Warning != "" {
		fmt.Printf("\nWarning: %s\n", stats.Warning)
	}
	return nil
}

func runRepos(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	repos, err := c.ListRepositories()
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(repos)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository", "Open Issues", "Last Analyzed"})
	for _, repo := range repos {
		lastAnalyzed := "never"
		if repo.LastAnalyzedAt != nil {
			lastAnalyzed = repo.LastAnalyzedAt.Format("2006-01-02 15:04")
		}
		table.Append([]string{repo.FullName, strconv.Itoa(repo.OpenIssues), lastAnalyzed})
	}
	table.Render()
	return nil
}

func runTrack(cmd *cobra.Command, args []string) error {
	owner, name, err := splitRepoArg(args[0])
	if err != nil {
		return err
	}

	c, err := getClient()
	if err != nil {
		return err
	}

	repo, err := c.TrackRepository(owner, name)
	if err != nil {
		return err
	}

	fmt.Printf("Tracking %s\n", repo.FullName)
	return nil
}

func runUntrack(cmd *cobra.Command, args []string) error {
	owner, name, err := splitRepoArg(args[0])
	if err != nil {
		return err
	}

	c, err := getClient()
	if err != nil {
		return err
	}

	if err := c.UntrackRepository(owner, name); err != nil {
		return err
	}

	fmt.Printf("Stopped tracking %s/%s\n", owner, name)
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	result, err := c.TriggerRefresh()
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(result)
	}

	fmt.Printf("Refresh complete: %d open issues across %d repositories\n", result.Total, result.Processed)
	if len(result.Failed) > 0 {
		fmt.Printf("Failed: %s\n", strings.Join(result.Failed, ", "))
	}
	return nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
