package schema

// Statements are idempotent; Ensure can run on every pipeline invocation.
var statements = []string{
	`CREATE SCHEMA IF NOT EXISTS staging`,
	`CREATE SCHEMA IF NOT EXISTS curated`,

	`CREATE TABLE IF NOT EXISTS curated.market_data (
    coin_id                          VARCHAR(255) NOT NULL PRIMARY KEY,
    symbol                           VARCHAR(255) NOT NULL,
    name                             VARCHAR(255) NOT NULL,
    current_price_usd                DECIMAL(20,8) NOT NULL,
    high_24h_usd                     DECIMAL(20,8),
    low_24h_usd                      DECIMAL(20,8),
    market_cap_usd                   BIGINT,
    market_cap_rank                  BIGINT,
    fully_diluted_valuation_usd      BIGINT,
    total_volume_usd                 BIGINT,
    price_change_24h_usd             DECIMAL(20,8),
    price_change_percentage_24h      DECIMAL(30,8),
    market_cap_change_24h_usd        DECIMAL(30,8),
    market_cap_change_percentage_24h DECIMAL(30,8),
    circulating_supply               DECIMAL(30,8),
    total_supply                     DECIMAL(30,8),
    max_supply                       DECIMAL(30,8),
    ath_usd                          DECIMAL(20,8),
    ath_change_percentage            DECIMAL(30,8),
    ath_date                         TIMESTAMP WITH TIME ZONE,
    atl_usd                          DECIMAL(20,8),
    atl_change_percentage            DECIMAL(30,8),
    atl_date                         TIMESTAMP WITH TIME ZONE,
    last_updated                     TIMESTAMP WITH TIME ZONE,
    extraction_timestamp             TIMESTAMP WITH TIME ZONE NOT NULL,
    price_to_ath_ratio               DECIMAL(30,8),
    price_to_atl_ratio               DECIMAL(30,8),
    market_cap_to_volume_ratio       DECIMAL(30,8)
)`,

	// Tables created before the percentage and rank columns were widened.
	// The views read these columns, so they are dropped and recreated below.
	`DROP VIEW IF EXISTS curated.top_market_cap, curated.top_gainers_24h, curated.top_losers_24h`,
	`ALTER TABLE curated.market_data
    ALTER COLUMN market_cap_rank TYPE BIGINT,
    ALTER COLUMN price_change_percentage_24h TYPE DECIMAL(30,8),
    ALTER COLUMN market_cap_change_percentage_24h TYPE DECIMAL(30,8),
    ALTER COLUMN ath_change_percentage TYPE DECIMAL(30,8),
    ALTER COLUMN atl_change_percentage TYPE DECIMAL(30,8)`,

	`CREATE INDEX IF NOT EXISTS idx_market_data_extraction_timestamp ON curated.market_data (extraction_timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_market_data_symbol ON curated.market_data (symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_market_data_market_cap_rank ON curated.market_data (market_cap_rank)`,

	`COMMENT ON TABLE curated.market_data IS 'Current cryptocurrency market data from CoinGecko'`,
	`COMMENT ON COLUMN curated.market_data.coin_id IS 'Unique cryptocurrency identifier'`,
	`COMMENT ON COLUMN curated.market_data.current_price_usd IS 'Current price in USD'`,
	`COMMENT ON COLUMN curated.market_data.market_cap_usd IS 'Market cap in USD'`,
	`COMMENT ON COLUMN curated.market_data.extraction_timestamp IS 'Timestamp of when the data was extracted'`,

	`CREATE TABLE IF NOT EXISTS curated.historical_data (
    coin_id              VARCHAR(255) NOT NULL,
    snapshot_date        DATE NOT NULL,
    symbol               VARCHAR(255) NOT NULL,
    name                 VARCHAR(255) NOT NULL,
    price_usd            DECIMAL(20,8) NOT NULL,
    price_eur            DECIMAL(20,8) NOT NULL,
    price_btc            DECIMAL(20,8) NOT NULL,
    price_eth            DECIMAL(20,8) NOT NULL,
    market_cap_usd       BIGINT NOT NULL,
    market_cap_eur       BIGINT NOT NULL,
    market_cap_btc       BIGINT NOT NULL,
    total_volume_usd     BIGINT NOT NULL,
    total_volume_eur     BIGINT NOT NULL,
    total_volume_btc     BIGINT NOT NULL,
    extraction_timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (coin_id, snapshot_date)
)`,

	`COMMENT ON TABLE curated.historical_data IS 'Historical cryptocurrency data from CoinGecko'`,
	`COMMENT ON COLUMN curated.historical_data.coin_id IS 'Unique cryptocurrency identifier'`,
	`COMMENT ON COLUMN curated.historical_data.snapshot_date IS 'UTC date the snapshot describes'`,
	`COMMENT ON COLUMN curated.historical_data.price_usd IS 'Price in USD for the historical date'`,

	`CREATE OR REPLACE VIEW curated.top_market_cap AS
SELECT coin_id, symbol, name, current_price_usd, market_cap_usd, market_cap_rank,
       total_volume_usd, price_change_percentage_24h, last_updated, extraction_timestamp
FROM curated.market_data
WHERE market_cap_rank <= 10
ORDER BY market_cap_rank`,

	`CREATE OR REPLACE VIEW curated.top_gainers_24h AS
SELECT coin_id, symbol, name, current_price_usd, market_cap_usd, market_cap_rank,
       total_volume_usd, price_change_percentage_24h, last_updated, extraction_timestamp
FROM curated.market_data
WHERE price_change_percentage_24h > 0
ORDER BY price_change_percentage_24h DESC
LIMIT 10`,

	`CREATE OR REPLACE VIEW curated.top_losers_24h AS
SELECT coin_id, symbol, name, current_price_usd, market_cap_usd, market_cap_rank,
       total_volume_usd, price_change_percentage_24h, last_updated, extraction_timestamp
FROM curated.market_data
WHERE price_change_percentage_24h < 0
ORDER BY price_change_percentage_24h ASC
LIMIT 10`,
}
