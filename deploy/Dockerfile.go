FROM golang:1.24-alpine AS builder

# api | notify-bridge
ARG SERVICE=api

WORKDIR /app

# Dependencies
COPY go.mod go.sum* ./
RUN go mod download

# Source
COPY . .

# Build
RUN CGO_ENABLED=0 GOOS=linux go build -trimpath -ldflags="-s -w" -o /app/service ./cmd/${SERVICE}

# Runtime
FROM alpine:3.19

RUN apk add --no-cache ca-certificates tzdata \
    && adduser -D -H -u 10001 modgate

WORKDIR /app

COPY --from=builder /app/service .
COPY --from=builder /app/migrations ./migrations

ENV MIGRATIONS_DIR=/app/migrations

USER modgate

EXPOSE 3000

CMD ["./service"]
