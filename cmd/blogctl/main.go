// Command blogctl is a CLI client for the blog data-access layer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kazama-Suichiku/blogstore/internal/comments"
	"github.com/Kazama-Suichiku/blogstore/internal/config"
	"github.com/Kazama-Suichiku/blogstore/internal/errs"
	"github.com/Kazama-Suichiku/blogstore/internal/limiter"
	"github.com/Kazama-Suichiku/blogstore/internal/model"
	"github.com/Kazama-Suichiku/blogstore/internal/retry"
	"github.com/Kazama-Suichiku/blogstore/internal/service"
	"github.com/Kazama-Suichiku/blogstore/internal/store"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `blogctl
Usage:
  blogctl [-retries n] [-retry-delay d] <cmd> [args]   (configured via environment / .env)

Commands:
  version
  mode                                        (print the transport decision)
  force-proxy <cmd> ...                       (override routing, then run cmd)
  articles                                    (list newest first)
  publish        -id <id> -title <t> -content <file|-> [-category c] [-tags a,b]
  article-rm     -id <id>
  attach-image   -id <id> -ref <url>
  comment        -article <id> [-parent <commentID>] -name <n> -text <t>
  comments       -article <id>                (render nesting)
  comment-rm     -id <commentID>              (cascades to descendants)
  watch          -article <id>                (stream re-renders)
  login-gate                                  (consume one login attempt)
  reset-limit    -action <name>
`)
	os.Exit(2)
}

func fail(err error) {
	if errors.Is(err, errs.ErrRateLimited) {
		fmt.Fprintln(os.Stderr, "blocked:", err)
		os.Exit(3)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func newLogger(cfg *config.Config) *zap.Logger {
	if cfg.Env == "dev" {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

// main loads configuration, wires the layer, and dispatches subcommands.
func main() {
	// Write commands may opt in to fixed-delay retries; the layer
	// itself never retries on its own.
	retries := flag.Int("retries", 1, "attempts for delete operations")
	retryDelay := flag.Duration("retry-delay", time.Second, "delay between attempts")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}
	args := flag.Args()

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		fail(err)
	}
	warnings, err := cfg.Validate()
	if err != nil {
		fail(err)
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	fileStore, err := limiter.NewFileStore(cfg.StateDir)
	if err != nil {
		fail(err)
	}
	lim := limiter.New(fileStore, logger)
	sel := store.NewSelector(cfg, logger)
	blog := service.NewBlog(sel, lim, cfg.MaxNestingLevel, logger)

	if args[0] == "force-proxy" {
		sel.ForceProxy()
		args = args[1:]
		if len(args) == 0 {
			usage()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {

	case "version":
		fmt.Printf("blogctl %s (%s)\n", version, buildDate)

	case "mode":
		fmt.Println(sel.Mode(ctx))

	case "articles":
		list, err := blog.Articles(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(list)

	case "publish":
		fs := flag.NewFlagSet("publish", flag.ExitOnError)
		id := fs.String("id", "", "article id")
		title := fs.String("title", "", "title")
		content := fs.String("content", "", "markdown file ('-' for stdin)")
		category := fs.String("category", "", "category")
		tags := fs.String("tags", "", "comma-separated tags")
		_ = fs.Parse(args[1:])
		if *id == "" || *title == "" || *content == "" {
			fmt.Fprintln(os.Stderr, "need -id, -title and -content")
			os.Exit(1)
		}
		body, err := readAll(*content)
		if err != nil {
			fail(err)
		}
		a := model.Article{ID: *id, Title: *title, Content: string(body), Category: *category}
		if *tags != "" {
			a.Tags = strings.Split(*tags, ",")
		}
		if err := blog.PublishArticle(ctx, a); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "article-rm":
		fs := flag.NewFlagSet("article-rm", flag.ExitOnError)
		id := fs.String("id", "", "article id")
		_ = fs.Parse(args[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		err := retry.Do(ctx, *retries, *retryDelay, func(ctx context.Context) error {
			return blog.DeleteArticle(ctx, *id)
		})
		if err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "attach-image":
		fs := flag.NewFlagSet("attach-image", flag.ExitOnError)
		id := fs.String("id", "", "article id")
		ref := fs.String("ref", "", "image reference")
		_ = fs.Parse(args[1:])
		if *id == "" || *ref == "" {
			fmt.Fprintln(os.Stderr, "need -id and -ref")
			os.Exit(1)
		}
		if err := blog.AttachImage(ctx, *id, *ref); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "comment":
		fs := flag.NewFlagSet("comment", flag.ExitOnError)
		article := fs.String("article", "", "article id")
		parent := fs.String("parent", "", "parent comment id (reply)")
		name := fs.String("name", "", "author name")
		text := fs.String("text", "", "comment text")
		_ = fs.Parse(args[1:])
		if *article == "" || *name == "" || *text == "" {
			fmt.Fprintln(os.Stderr, "need -article, -name and -text")
			os.Exit(1)
		}
		c, err := blog.AddComment(ctx, *article, *parent, *name, *text)
		if err != nil {
			fail(err)
		}
		if c == nil {
			fmt.Println("dropped (reply target gone)")
			return
		}
		printJSON(c)

	case "comments":
		fs := flag.NewFlagSet("comments", flag.ExitOnError)
		article := fs.String("article", "", "article id")
		_ = fs.Parse(args[1:])
		if *article == "" {
			fmt.Fprintln(os.Stderr, "need -article")
			os.Exit(1)
		}
		nodes, err := blog.RenderComments(ctx, *article)
		if err != nil {
			fail(err)
		}
		printNodes(nodes)

	case "comment-rm":
		fs := flag.NewFlagSet("comment-rm", flag.ExitOnError)
		id := fs.String("id", "", "comment id")
		_ = fs.Parse(args[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		n, err := blog.DeleteComment(ctx, *id)
		if err != nil {
			fail(err)
		}
		fmt.Printf("attempted %d delete(s)\n", n)

	case "watch":
		fs := flag.NewFlagSet("watch", flag.ExitOnError)
		article := fs.String("article", "", "article id")
		_ = fs.Parse(args[1:])
		if *article == "" {
			fmt.Fprintln(os.Stderr, "need -article")
			os.Exit(1)
		}
		wctx := context.Background() // watch outlives the default op timeout
		out, sub, err := blog.WatchComments(wctx, *article)
		if err != nil {
			fail(err)
		}
		defer sub.Close()
		for nodes := range out {
			fmt.Println("--", time.Now().Format(time.TimeOnly))
			printNodes(nodes)
		}

	case "login-gate":
		d, err := blog.AllowLogin()
		if err != nil {
			fail(err)
		}
		if !d.Allowed {
			fmt.Printf("blocked, retry after %s\n", d.RetryAfter)
			os.Exit(3)
		}
		fmt.Println("allowed")

	case "reset-limit":
		fs := flag.NewFlagSet("reset-limit", flag.ExitOnError)
		action := fs.String("action", "", "action name")
		_ = fs.Parse(args[1:])
		if *action == "" {
			fmt.Fprintln(os.Stderr, "need -action")
			os.Exit(1)
		}
		if err := blog.ResetLimit(*action); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}

// printNodes renders the nesting as an indented thread.
func printNodes(nodes []comments.Node) {
	for _, n := range nodes {
		indent := strings.Repeat("  ", n.Level)
		reply := ""
		if n.CanReply {
			reply = " [reply]"
		}
		fmt.Printf("%s%s (%s)%s\n", indent, n.Name, n.ID, reply)
		fmt.Printf("%s  %s\n", indent, n.Text)
	}
}
