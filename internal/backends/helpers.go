package backends

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"

	"zwop/internal/backends/ddb"
	filebackend "zwop/internal/backends/file"
	"zwop/internal/backends/memory"
	"zwop/internal/ports"
	"zwop/internal/pub"
	"zwop/internal/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	redisbackend "zwop/internal/backends/redis"
)

const (
	ClientBackendEnvKey = "CLIENT_BACKEND"
	BackendFile         = "file"
	BackendDDB          = "ddb"
	BackendRedis        = "redis"

	ClientsFileKey     = "CLIENTS_FILE"
	DefaultClientsFile = "./config/clients.json"

	DDBEndpointKey  = "DDB_ENDPOINT"
	DDBTableKey     = "DDB_TABLE"
	DefaultDDBTable = "zwop"

	RedisHost  = "REDIS_HOST"
	RedisPort  = "REDIS_PORT"
	RedisUser  = "REDIS_USER"
	RedisPass  = "REDIS_PASS"
	RedisTLS   = "REDIS_SSL"
	RedisDBNum = "REDIS_DB_NUM"

	AuditSNSArnKey = "AUDIT_SNS_ARN"
	SNSEndpointKey = "SNS_ENDPOINT"
)
const AmazonRootCA1PEM = `-----BEGIN CERTIFICATE-----
MIIDQTCCAimgAwIBAgITBmyfz5m/jAo54vB4ikPmljZbyjANBgkqhkiG9w0BAQsF
ADA5MQswCQYDVQQGEwJVUzEPMA0GA1UEChMGQW1hem9uMRkwFwYDVQQDExBBbWF6
b24gUm9vdCBDQSAxMB4XDTE1MDUyNjAwMDAwMFoXDTM4MDExNzAwMDAwMFowOTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoTBkFtYXpvbjEZMBcGA1UEAxMQQW1hem9uIFJv
b3QgQ0EgMTCCASIwDQYJKoZIhvcNAQEBBQADggEPADCCAQoCggEBALJ4gHHKeNXj
ca9HgFB0fW7Y14h29Jlo91ghYPl0hAEvrAIthtOgQ3pOsqTQNroBvo3bSMgHFzZM
9O6II8c+6zf1tRn4SWiw3te5djgdYZ6k/oI2peVKVuRF4fn9tBb6dNqcmzU5L/qw
IFAGbHrQgLKm+a/sRxmPUDgH3KKHOVj4utWp+UhnMJbulHheb4mjUcAwhmahRWa6
VOujw5H5SNz/0egwLX0tdHA114gk957EWW67c4cX8jJGKLhD+rcdqsq08p8kDi1L
93FcXmn/6pUCyziKrlA4b9v7LWIbxcceVOF34GfID5yHI9Y/QCB/IIDEgEw+OyQm
jgSubJrIqg0CAwEAAaNCMEAwDwYDVR0TAQH/BAUwAwEB/zAOBgNVHQ8BAf8EBAMC
AYYwHQYDVR0OBBYEFIQYzIU07LwMlJQuCFmcx7IQTgoIMA0GCSqGSIb3DQEBCwUA
A4IBAQCY8jdaQZChGsV2USggNiMOruYou6r4lK5IpDB/G/wkjUu0yKGX9rbxenDI
U5PMCCjjmCXPI6T53iHTfIUJrU6adTrCC2qJeHZERxhlbI1Bjjt/msv0tadQ1wUs
N+gDS63pYaACbvXy8MWy7Vu33PqUXHeeE6V/Uq2V8viTO96LXFvKWlJbYK8U90vv
o/ufQJVtMVT8QtPHRh8jrdkPSHCa2XV4cdFyQzR1bldZwgJcJmApzyMZFo6IQ6XU
5MsI+yMRQ+hDKXJioaldXgjUkK642M4UwtBV8ob2xJNDd2ZhwLnoQdeXeGADbkpy
rqXRfboQnoZsG4q5WTP468SQvvG5
-----END CERTIFICATE-----`

// ClientRepositoryFromEnv constructs the ClientRepository and a matching RateLimiter based
// on environment variables. "CLIENT_BACKEND" selects "file" (default), "redis" or "ddb";
// each backend reads its own additional env vars. The file backend pairs with an in-process
// rate limiter, the others keep their counters in the same backend.
func ClientRepositoryFromEnv(ctx context.Context) (repo ports.ClientRepository, limiter ports.RateLimiter, err error) {
	backend := os.Getenv(ClientBackendEnvKey)
	switch backend {
	case BackendRedis:
		var redisClient *redis.Client
		redisClient, err = redisClientFromEnv(ctx)
		if err != nil {
			return nil, nil, err
		}
		repo = redisbackend.NewRepository(redisClient)
		limiter = redisbackend.NewRateLimiter(redisClient)

	case BackendDDB:
		var ddbClient *dynamodb.Client
		ddbClient, err = ddbClientFromEnv(ctx)
		if err != nil {
			return nil, nil, err
		}
		table := getenv(DDBTableKey, DefaultDDBTable)
		if repo, err = ddb.NewRepository(ctx, table, ddbClient); err != nil {
			return nil, nil, err
		}
		if limiter, err = ddb.NewRateLimiter(ctx, table, ddbClient); err != nil {
			return nil, nil, err
		}

	case BackendFile, "":
		var fr *filebackend.Repository
		if fr, err = filebackend.NewRepository(getenv(ClientsFileKey, DefaultClientsFile)); err != nil {
			return nil, nil, err
		}
		repo, limiter = fr, memory.NewRateLimiter()
		log.WithField("path", fr.Path()).Info("client store file loaded")

	default:
		return nil, nil, types.Err(types.ErrInvalidBackend, nil, "%s=%q", ClientBackendEnvKey, backend)
	}
	log.WithField("backend", backendName(backend)).Info("client repository ready")
	return
}

// PublisherFromEnv returns an SNS publisher and its topic when AUDIT_SNS_ARN is set,
// otherwise a publisher that drops events.
func PublisherFromEnv(ctx context.Context) (ports.Publisher, string, error) {
	arn := os.Getenv(AuditSNSArnKey)
	if arn == "" {
		return pub.NewNop(), "", nil
	}
	var snsEndpoint *string
	if se := os.Getenv(SNSEndpointKey); se != "" {
		snsEndpoint = aws.String(se)
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("load AWS config: %w", err)
	}
	snsClient := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if snsEndpoint != nil {
			o.BaseEndpoint = snsEndpoint
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
		}
	})
	return pub.NewSNS(snsClient), arn, nil
}

func backendName(b string) string {
	if b == "" {
		return BackendFile
	}
	return b
}

// ddbClientFromEnv creates a DynamoDB client from environment variables, if any.
func ddbClientFromEnv(ctx context.Context) (*dynamodb.Client, error) {
	var ddbEndpoint *string
	de := os.Getenv(DDBEndpointKey)
	if de != "" {
		ddbEndpoint = aws.String(de)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	ddbClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if ddbEndpoint != nil {
			// This is used for testing only locally
			o.BaseEndpoint = ddbEndpoint
			o.Region = getenv("AWS_REGION", "us-east-1")
			credProvider := credentials.NewStaticCredentialsProvider(
				getenv("AWS_ACCESS_KEY_ID", "x"),
				getenv("AWS_SECRET_ACCESS_KEY", "x"),
				"",
			)
			o.Credentials = credProvider
		}
	})
	return ddbClient, nil
}

// redisClientFromEnv creates a Redis client from environment variables, if any.
func redisClientFromEnv(ctx context.Context) (*redis.Client, error) {
	host := getenv(RedisHost, "localhost")
	port := getenv(RedisPort, "6379")
	user := os.Getenv(RedisUser)
	pass := os.Getenv(RedisPass)
	tlsEnabled := parseBoolean(getenv(RedisTLS, "false"))
	dbNumStr := getenv(RedisDBNum, "0")
	dbNum, err := strconv.Atoi(dbNumStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis DB number: %w", err)
	}

	var tlsConfig *tls.Config
	if tlsEnabled {
		// Create a CA certificate pool and add our CA certificate
		caCerts := x509.NewCertPool()
		if !caCerts.AppendCertsFromPEM([]byte(AmazonRootCA1PEM)) {
			return nil, fmt.Errorf("failed to retrieve CA certificate")
		}
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    caCerts,
		}
	}

	redisConfig := redis.Options{
		Addr:      fmt.Sprintf("%s:%s", host, port),
		Username:  user,
		Password:  pass,
		DB:        dbNum,
		TLSConfig: tlsConfig,
	}
	redisClient := redis.NewClient(&redisConfig)
	_, err = redisClient.Ping(ctx).Result()
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "failed to ping Redis at %s", redisConfig.Addr)
	}
	return redisClient, nil
}

// getenv retrieves the value of the environment variable named by the key.
func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func parseBoolean(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}
