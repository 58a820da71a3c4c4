package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/sreeduggirala/polytrade/internal/domain"
)

// WriteTradesToCSV dumps trade events to a CSV file, one row per trade.
func WriteTradesToCSV(trades []*domain.TradeEvent, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"timestamp", "source_wallet", "tx_hash", "market_id", "market_title", "side", "size", "price", "volume"})

	for _, t := range trades {
		writer.Write([]string{
			t.Timestamp.Format(time.RFC3339),
			t.SourceWallet,
			t.TxHash,
			t.MarketID,
			t.MarketTitle,
			string(t.Side),
			strconv.FormatFloat(t.Size, 'f', -1, 64),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			t.Volume.String(),
		})
	}
	return writer.Error()
}
