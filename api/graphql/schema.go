// Package graphql exposes the derived state store through a GraphQL
// query endpoint, mirroring the REST query surface.
package graphql

import (
	"time"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/engine"
	"github.com/tokenlytics/engine-go/storage"
)

// Schema holds the GraphQL schema
type Schema struct {
	schema  graphql.Schema
	storage storage.Reader
	status  func() *engine.Status
	logger  *zap.Logger
}

// NewSchema creates a new GraphQL schema over the derived state store.
// status may be nil or return nil, in which case the status query
// reports only the cursor height.
func NewSchema(store storage.Reader, status func() *engine.Status, logger *zap.Logger) (*Schema, error) {
	s := &Schema{
		storage: store,
		status:  status,
		logger:  logger,
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"transaction": &graphql.Field{
				Type: transactionType,
				Args: graphql.FieldConfigArgument{
					"hash": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(hashType),
					},
					"logIndex": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 0,
					},
				},
				Resolve: s.resolveTransaction,
			},
			"transactions": &graphql.Field{
				Type: graphql.NewList(graphql.NewNonNull(transactionType)),
				Args: graphql.FieldConfigArgument{
					"type": &graphql.ArgumentConfig{
						Type: transactionTypeEnum,
					},
					"from": &graphql.ArgumentConfig{
						Type: addressType,
					},
					"to": &graphql.ArgumentConfig{
						Type: addressType,
					},
					"startTime": &graphql.ArgumentConfig{
						Type: graphql.String,
					},
					"endTime": &graphql.ArgumentConfig{
						Type: graphql.String,
					},
					"limit": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 50,
					},
					"offset": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 0,
					},
				},
				Resolve: s.resolveTransactions,
			},
			"transactionsByAddress": &graphql.Field{
				Type: graphql.NewList(graphql.NewNonNull(transactionType)),
				Args: graphql.FieldConfigArgument{
					"address": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(addressType),
					},
					"limit": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 50,
					},
					"offset": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 0,
					},
				},
				Resolve: s.resolveTransactionsByAddress,
			},
			"analytics": &graphql.Field{
				Type: userAnalyticsType,
				Args: graphql.FieldConfigArgument{
					"address": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(addressType),
					},
				},
				Resolve: s.resolveAnalytics,
			},
			"proposal": &graphql.Field{
				Type: proposalType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(bigIntType),
					},
				},
				Resolve: s.resolveProposal,
			},
			"proposals": &graphql.Field{
				Type: graphql.NewList(graphql.NewNonNull(proposalType)),
				Args: graphql.FieldConfigArgument{
					"status": &graphql.ArgumentConfig{
						Type: proposalStatusEnum,
					},
					"limit": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 50,
					},
					"offset": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 0,
					},
				},
				Resolve: s.resolveProposals,
			},
			"votes": &graphql.Field{
				Type: graphql.NewList(graphql.NewNonNull(voteType)),
				Args: graphql.FieldConfigArgument{
					"proposalId": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(bigIntType),
					},
				},
				Resolve: s.resolveVotes,
			},
			"metrics": &graphql.Field{
				Type:    snapshotType,
				Resolve: s.resolveMetrics,
			},
			"metricsHistory": &graphql.Field{
				Type: graphql.NewList(graphql.NewNonNull(snapshotType)),
				Args: graphql.FieldConfigArgument{
					"timeframe": &graphql.ArgumentConfig{
						Type:         graphql.String,
						DefaultValue: "24h",
					},
					"limit": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 100,
					},
				},
				Resolve: s.resolveMetricsHistory,
			},
			"topHolders": &graphql.Field{
				Type: graphql.NewList(graphql.NewNonNull(holderType)),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 10,
					},
				},
				Resolve: s.resolveTopHolders,
			},
			"status": &graphql.Field{
				Type:    graphql.NewNonNull(statusType),
				Resolve: s.resolveStatus,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
	if err != nil {
		return nil, err
	}

	s.schema = schema
	return s, nil
}

// parseTimeframe converts a history timeframe string to a duration
func parseTimeframe(tf string) time.Duration {
	switch tf {
	case "1h":
		return time.Hour
	case "24h":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	default:
		if d, err := time.ParseDuration(tf); err == nil && d > 0 {
			return d
		}
		return 24 * time.Hour
	}
}
