package cli

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mentorpal/askload/internal/ask"
	"github.com/mentorpal/askload/internal/dataset"
	"github.com/mentorpal/askload/internal/load/config"
)

func newURLsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "urls",
		Short: "Generate a direct-url dataset from questions and mentors",
		Long: `Generate the complete request URLs a mentor-question run would send.

By default each question is paired with one random mentor. --all writes
every mentor and question combination. The output feeds --urls.`,
		Example: `  askload urls --api-url "https://api.mentorpal.org/classifier/questions/?referer=load-test" \
    --questions benchmark/cf-questions.json --output urls.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := config.TargetConfig{
				APIURL:      v.GetString("api-url"),
				Questions:   v.GetString("questions"),
				MentorsFile: v.GetString("mentors-file"),
			}
			if target.APIURL == "" {
				return fmt.Errorf("--api-url is required")
			}
			if target.Questions == "" {
				return fmt.Errorf("--questions is required")
			}

			questions, err := dataset.LoadStrings(target.Questions)
			if err != nil {
				return fmt.Errorf("failed to load questions: %w", err)
			}
			mentors, err := ask.LoadMentors(target)
			if err != nil {
				return err
			}

			var urls []string
			if v.GetBool("all") {
				urls = ask.ExpandURLs(target.APIURL, questions, mentors)
			} else {
				var r *rand.Rand
				if v.IsSet("seed") {
					r = rand.New(rand.NewPCG(v.GetUint64("seed"), 0))
				}
				urls = ask.SampleURLs(target.APIURL, questions, mentors, r)
			}

			out := v.GetString("output")
			if out == "" {
				return dataset.WriteStrings(cmd.OutOrStdout(), urls)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			if err := dataset.WriteStrings(f, urls); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d urls to %s\n", len(urls), out)
			return f.Close()
		},
	}

	f := cmd.Flags()
	f.String("api-url", "", "Classifier questions endpoint")
	f.String("questions", "", "JSON file with an array of questions")
	f.String("mentors-file", "", "JSON file with an array of mentor ids (default: built-in list)")
	f.StringP("output", "o", "", "Output file (default: stdout)")
	f.Bool("all", false, "Write every mentor and question combination")
	f.Uint64("seed", 0, "Seed the mentor selection")
	return cmd
}
