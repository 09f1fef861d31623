package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/nacos"
	"storefront/internal/service/shipping/application"
	"storefront/internal/service/shipping/domain"
	"storefront/internal/service/shipping/infrastructure"
	"storefront/internal/service/shipping/infrastructure/rule"
)

type quoteOptions struct {
	snapshotPath string
	requestPath  string
	remote       string
	discover     bool
	timeout      time.Duration
}

func newQuoteCmd() *cobra.Command {
	var opts quoteOptions
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Resolve a shipping quote offline from a snapshot file, or against a running service",
		Example: `  shipctl quote --snapshot tracker.yaml --request req.json
  shipctl quote --remote http://localhost:8086 --request req.json
  shipctl quote --discover --request req.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runQuote(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.snapshotPath, "snapshot", "", "YAML snapshot of rules/settings/cities for offline resolution")
	cmd.Flags().StringVar(&opts.requestPath, "request", "-", "quote request JSON file, '-' for stdin")
	cmd.Flags().StringVar(&opts.remote, "remote", "", "base URL of a running shipping-service")
	cmd.Flags().BoolVar(&opts.discover, "discover", false, "find a shipping-service instance through Nacos")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall timeout")
	cmd.MarkFlagsMutuallyExclusive("snapshot", "remote", "discover")
	return cmd
}

func runQuote(ctx context.Context, opts quoteOptions, stdin io.Reader, out io.Writer) error {
	req, err := readRequest(opts.requestPath, stdin)
	if err != nil {
		return err
	}

	var resp *application.QuoteResponse
	switch {
	case opts.snapshotPath != "":
		resp, err = quoteOffline(ctx, opts.snapshotPath, req)
	case opts.remote != "" || opts.discover:
		resp, err = quoteRemote(ctx, opts, req)
	default:
		return errors.New("one of --snapshot, --remote or --discover is required")
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func readRequest(path string, stdin io.Reader) (*application.QuoteRequest, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var req application.QuoteRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return &req, nil
}

// quoteOffline 使用和线上完全相同的应用服务，只是把规则存储换成快照文件。
func quoteOffline(ctx context.Context, path string, req *application.QuoteRequest) (*application.QuoteResponse, error) {
	file, err := loadSnapshotFile(path)
	if err != nil {
		return nil, err
	}
	evaluator, err := rule.NewCELEvaluator()
	if err != nil {
		return nil, err
	}
	resolver := domain.NewResolver(domain.WithConditionEvaluator(evaluator))

	svc := application.NewShippingService(
		infrastructure.NewSnapshotRepository(staticRows{rows: file.rows()}),
		fileCities(file.Cities),
		resolver,
		otel.Tracer("shipctl"),
	)
	return svc.GetQuote(ctx, req)
}

func quoteRemote(ctx context.Context, opts quoteOptions, req *application.QuoteRequest) (*application.QuoteResponse, error) {
	base := strings.TrimRight(opts.remote, "/")
	if opts.discover {
		cfg := bootstrap.GetCurrentConfig().Infra.Nacos
		client, err := nacos.NewNacosClient(cfg.Addrs, cfg.Namespace, cfg.Group)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		ip, port, err := client.DiscoverServiceInstance("shipping-service")
		if err != nil {
			return nil, err
		}
		base = fmt.Sprintf("http://%s:%d", ip, port)
	}

	var resp application.QuoteResponse
	if err := httpclient.NewClient(otel.Tracer("shipctl")).PostJSON(ctx, base+"/shipping/quote", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// staticRows 从内存返回固定的快照行。
type staticRows struct {
	rows *infrastructure.SnapshotRows
}

func (s staticRows) LoadSnapshotRows(_ context.Context, productID string) (*infrastructure.SnapshotRows, error) {
	if !strings.EqualFold(productID, s.rows.ProductID) {
		return &infrastructure.SnapshotRows{ProductID: productID}, nil
	}
	return s.rows, nil
}

// fileCities 按与数据库相同的规则匹配城市：城市名不区分大小写，省份为空时只按城市名。
type fileCities []cityFile

func (c fileCities) FindCityID(_ context.Context, provinceCode, cityName string) (*int64, error) {
	for _, city := range c {
		if !strings.EqualFold(city.Name, cityName) {
			continue
		}
		if provinceCode != "" && !strings.EqualFold(city.ProvinceCode, provinceCode) {
			continue
		}
		id := city.ID
		return &id, nil
	}
	return nil, nil
}
