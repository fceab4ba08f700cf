package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sardine-ai/go-remote-flags/model"
	"github.com/sirupsen/logrus"
)

// S3Source is a Source that reads the flag listing from an object in an S3
// bucket. Requests carry the previous ETag as If-None-Match, so S3 answers
// 304 for an unchanged object.
type S3Source struct {
	Name       string     // Name of the source
	BucketName string     // Name of the S3 bucket
	ObjectName string     // Object key; may contain EnvPlaceholder. Defaults to "{env}.json"
	Prefix     string     // Optional prefix joined before ObjectName
	Client     *s3.Client // S3 client instance

	// Static credentials, used only when Client is nil. When empty the
	// default AWS credential chain applies.
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	clientOnce    sync.Once // Ensures client is initialized only once
	clientInitErr error     // Stores error from client initialization
}

// GetName returns the name of the source.
func (a *S3Source) GetName() string {
	if a.Name == "" {
		return "s3"
	}
	return a.Name
}

func (a *S3Source) objectKey(env string) string {
	name := a.ObjectName
	if name == "" {
		name = EnvPlaceholder + ".json"
	}
	return path.Join(a.Prefix, strings.ReplaceAll(name, EnvPlaceholder, env))
}

// initClient creates the S3 client on first use unless one was provided.
func (a *S3Source) initClient() error {
	a.clientOnce.Do(func() {
		if a.Client != nil {
			return
		}
		var opts []func(*config.LoadOptions) error
		if a.Region != "" {
			opts = append(opts, config.WithRegion(a.Region))
		}
		if a.AccessKeyID != "" {
			opts = append(opts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(a.AccessKeyID, a.SecretAccessKey, ""),
			))
		}
		cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			a.clientInitErr = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		a.Client = s3.NewFromConfig(cfg)
	})
	return a.clientInitErr
}

// Fetch issues a conditional GetObject for the object of req.Config.Environment.
func (a *S3Source) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := a.initClient(); err != nil {
		return Result{}, transportError(a.GetName(), model.ReasonRequest, err)
	}

	key := a.objectKey(req.Config.Environment)
	input := &s3.GetObjectInput{
		Bucket: aws.String(a.BucketName),
		Key:    aws.String(key),
	}
	if req.Validator != "" {
		input.IfNoneMatch = aws.String(req.Validator)
	}

	result, err := a.Client.GetObject(ctx, input)
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			if respErr.HTTPStatusCode() == http.StatusNotModified {
				return NotModified(), nil
			}
			logrus.WithField("key", key).Debug("error getting object")
			return Result{}, &model.TransportError{
				Source:     a.GetName(),
				Reason:     model.ReasonStatus,
				StatusCode: respErr.HTTPStatusCode(),
				Err:        err,
			}
		}
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, transportError(a.GetName(), model.ReasonNetwork, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return Result{}, transportError(a.GetName(), model.ReasonRead, err)
	}
	return Updated(data, aws.ToString(result.ETag)), nil
}
