// Command seed-db loads the demo catalogue, promotions and an API key.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/domain/auth"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/domain/promotion"
	"github.com/xenking/retail-orders/internal/storage/postgres"
)

type options struct {
	databaseURL    string
	productsFile   string
	promotionsFile string
	apiKey         string
	apiKeyPepper   string
	apiKeyScopes   string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.promotionsFile, "promotions-file", "db/seed/promotions.ndjson", "path to promotions NDJSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or RETAIL_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or RETAIL_API_KEY_PEPPER env)")
	flag.StringVar(&opts.apiKeyScopes, "api-key-scopes", "*", "comma-separated scopes, e.g. channel:pos,channel:app")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("RETAIL_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or RETAIL_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("RETAIL_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedPromotions(ctx, lg, postgres.NewPromotionRepository(pool), opts.promotionsFile); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	key := &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(opts.apiKeyPepper), opts.apiKey),
		Name:    "Default key",
		Scopes:  strings.Split(opts.apiKeyScopes, ","),
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("Upserted API key", zap.String("id", key.ID), zap.Strings("scopes", key.Scopes))

	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	products, err := decodeProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))
	return nil
}

func seedPromotions(ctx context.Context, lg *zap.Logger, repo *postgres.PromotionRepository, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open promotions file")
	}
	defer func() { _ = f.Close() }()

	var records []postgres.PromotionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		doc, err := promotion.ParseDocument(line)
		if err != nil {
			return err
		}
		records = append(records, postgres.PromotionRecord{Document: doc, Raw: bytes.Clone(line)})
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read promotions file")
	}

	if err := repo.Upsert(ctx, records); err != nil {
		return err
	}
	lg.Info("Upserted promotions", zap.Int("count", len(records)))
	return nil
}

func decodeProducts(data []byte) ([]product.Product, error) {
	var products []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "category":
				p.Category, err = d.Str()
			case "price":
				p.Price, err = decodePrice(d)
			case "image":
				err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "thumbnail":
						p.Image.Thumbnail, err = d.Str()
					case "mobile":
						p.Image.Mobile, err = d.Str()
					case "tablet":
						p.Image.Tablet, err = d.Str()
					case "desktop":
						p.Image.Desktop, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				})
			default:
				err = d.Skip()
			}
			return errors.Wrapf(err, "field %q", key)
		})
		if err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	return products, err
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}
